// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import (
	"context"
)

// Verifier verifies that an attestation authorizes a message.
type Verifier interface {
	// Verify checks the attestation over the message.
	// Returns nil on success, or an error if verification fails.
	Verify(ctx context.Context, msg *Message, attestation []byte) error
}
