// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts token messenger activity.
type Metrics struct {
	depositsForBurn  prometheus.Counter
	depositsReplaced prometheus.Counter
	mintsCompleted   prometheus.Counter
	hooksExecuted    prometheus.Counter
	hooksFailed      prometheus.Counter
}

// NewMetrics creates token messenger metrics registered with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	depositsForBurn := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deposits_for_burn_count",
			Help: "Number of deposits burned for cross-domain transfer",
		},
	)
	registerer.MustRegister(depositsForBurn)

	depositsReplaced := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deposits_replaced_count",
			Help: "Number of deposits replaced",
		},
	)
	registerer.MustRegister(depositsReplaced)

	mintsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mints_completed_count",
			Help: "Number of received deposits minted",
		},
	)
	registerer.MustRegister(mintsCompleted)

	hooksExecuted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hooks_executed_count",
			Help: "Number of hook payloads executed after mint",
		},
	)
	registerer.MustRegister(hooksExecuted)

	hooksFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hooks_failed_count",
			Help: "Number of hook payloads that failed",
		},
	)
	registerer.MustRegister(hooksFailed)

	return &Metrics{
		depositsForBurn:  depositsForBurn,
		depositsReplaced: depositsReplaced,
		mintsCompleted:   mintsCompleted,
		hooksExecuted:    hooksExecuted,
		hooksFailed:      hooksFailed,
	}
}
