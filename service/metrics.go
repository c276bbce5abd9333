// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts attestation service activity.
type Metrics struct {
	messagesAttested   prometheus.Counter
	messagesReattested prometheus.Counter
	attestFailures     prometheus.Counter
	attestLatencyMS    prometheus.Gauge
}

// NewMetrics creates attestation service metrics registered with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	messagesAttested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_attested_count",
			Help: "Number of messages finalized and signed",
		},
	)
	registerer.MustRegister(messagesAttested)

	messagesReattested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_reattested_count",
			Help: "Number of attestations refreshed with a new expiration",
		},
	)
	registerer.MustRegister(messagesReattested)

	attestFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attest_failures_count",
			Help: "Number of attestation requests refused",
		},
	)
	registerer.MustRegister(attestFailures)

	attestLatencyMS := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attest_latency_ms",
			Help: "Latency of the most recent attestation request",
		},
	)
	registerer.MustRegister(attestLatencyMS)

	return &Metrics{
		messagesAttested:   messagesAttested,
		messagesReattested: messagesReattested,
		attestFailures:     attestFailures,
		attestLatencyMS:    attestLatencyMS,
	}
}
