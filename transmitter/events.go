// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package transmitter

import (
	"context"

	"github.com/luxfi/cctp"
)

// SentMessage is the event emitted for every sent or replaced message.
type SentMessage struct {
	// Index is the transmitter-local strictly increasing event index.
	Index uint64

	// Message is the decoded envelope. Its nonce is zero until the
	// attestation layer assigns one.
	Message *cctp.Message

	// Raw is the serialized form of Message.
	Raw []byte
}

// Sink receives sent-message events. Sink errors are logged by the
// transmitter and never fail the send.
type Sink interface {
	Accept(ctx context.Context, event *SentMessage) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event *SentMessage) error

func (f SinkFunc) Accept(ctx context.Context, event *SentMessage) error {
	return f(ctx, event)
}
