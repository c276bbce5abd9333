// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package transmitter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts transmitter activity.
type Metrics struct {
	messagesSent     prometheus.Counter
	messagesReplaced prometheus.Counter
	messagesReceived prometheus.Counter
	receiveRejected  *prometheus.CounterVec
}

// NewMetrics creates transmitter metrics registered with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	messagesSent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_count",
			Help: "Number of messages sent",
		},
	)
	registerer.MustRegister(messagesSent)

	messagesReplaced := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_replaced_count",
			Help: "Number of messages replaced",
		},
	)
	registerer.MustRegister(messagesReplaced)

	messagesReceived := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_received_count",
			Help: "Number of messages received and dispatched",
		},
	)
	registerer.MustRegister(messagesReceived)

	receiveRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_receive_rejected_count",
			Help: "Number of receives rejected, by reason",
		},
		[]string{"reason"},
	)
	registerer.MustRegister(receiveRejected)

	return &Metrics{
		messagesSent:     messagesSent,
		messagesReplaced: messagesReplaced,
		messagesReceived: messagesReceived,
		receiveRejected:  receiveRejected,
	}
}
