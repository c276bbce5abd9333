// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package transmitter

import (
	"context"

	"github.com/luxfi/ids"
)

// MessageRecipient handles messages delivered to a registered recipient id.
// A nil return accepts the message; any error rejects it and rolls back the
// nonce reservation so delivery can be retried.
type MessageRecipient interface {
	// HandleReceiveFinalizedMessage handles a message whose executed finality
	// reached the finalized threshold.
	HandleReceiveFinalizedMessage(
		ctx context.Context,
		sourceDomain uint32,
		sender ids.ID,
		finalityThresholdExecuted uint32,
		body []byte,
	) error

	// HandleReceiveUnfinalizedMessage handles a message delivered below the
	// finalized threshold.
	HandleReceiveUnfinalizedMessage(
		ctx context.Context,
		sourceDomain uint32,
		sender ids.ID,
		finalityThresholdExecuted uint32,
		body []byte,
	) error
}
