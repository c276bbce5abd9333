// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNonceUsed = errors.New("nonce already used")
)

// NonceKey identifies a nonce within the source domain that assigned it.
// Nonces from different domains never collide even when the identifier bytes
// are equal.
type NonceKey struct {
	SourceDomain uint32
	Nonce        ids.ID
}

// NonceStore tracks which nonces have been consumed on the receiving side.
// The zero nonce is permanently used and can never be reserved.
type NonceStore interface {
	// Reserve marks the nonce as used. Returns ErrNonceUsed if it already is.
	Reserve(ctx context.Context, key NonceKey) error

	// Release frees a reservation so the nonce can be received again. It is
	// called when dispatch fails after the nonce was reserved.
	Release(ctx context.Context, key NonceKey) error

	// IsUsed reports whether the nonce has been consumed.
	IsUsed(ctx context.Context, key NonceKey) (bool, error)
}

// MessageStore persists records of sent messages so they can be looked up by
// message ID for replacement and re-attestation.
type MessageStore interface {
	PutMessage(ctx context.Context, id ids.ID, record *MessageRecord) error
	GetMessage(ctx context.Context, id ids.ID) (*MessageRecord, error)
}

// Backend combines the stores a transmitter needs.
type Backend interface {
	NonceStore
	MessageStore
}
