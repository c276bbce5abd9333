// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts relay outcomes per domain pair.
type Metrics struct {
	successfulRelayMessageCount *prometheus.CounterVec
	failedRelayMessageCount     *prometheus.CounterVec
	relayLatencyMS              *prometheus.GaugeVec
}

// NewMetrics creates relayer metrics registered with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		successfulRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "successful_relay_message_count",
				Help: "Number of messages that relayed successfully",
			},
			[]string{"source_domain", "destination_domain"},
		),
		failedRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_relay_message_count",
				Help: "Number of messages that failed to relay",
			},
			[]string{"source_domain", "destination_domain", "failure_reason"},
		),
		relayLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_latency_ms",
				Help: "Latency of attesting and delivering a message in milliseconds",
			},
			[]string{"source_domain", "destination_domain"},
		),
	}

	registerer.MustRegister(m.successfulRelayMessageCount)
	registerer.MustRegister(m.failedRelayMessageCount)
	registerer.MustRegister(m.relayLatencyMS)

	return &m
}
