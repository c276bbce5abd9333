// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func nonceID(b byte) ids.ID {
	var id ids.ID
	id[31] = b
	return id
}

func TestMemoryBackendNonces(t *testing.T) {
	require := require.New(t)

	b := NewMemoryBackend()
	ctx := context.Background()
	key := NonceKey{SourceDomain: 0, Nonce: nonceID(0x01)}

	used, err := b.IsUsed(ctx, key)
	require.NoError(err)
	require.False(used)

	require.NoError(b.Reserve(ctx, key))

	used, err = b.IsUsed(ctx, key)
	require.NoError(err)
	require.True(used)

	// A second reservation of the same nonce must fail.
	require.ErrorIs(b.Reserve(ctx, key), ErrNonceUsed)

	// The same identifier under another source domain is independent.
	other := NonceKey{SourceDomain: 1, Nonce: nonceID(0x01)}
	require.NoError(b.Reserve(ctx, other))

	// Releasing makes the nonce reservable again.
	require.NoError(b.Release(ctx, key))
	used, err = b.IsUsed(ctx, key)
	require.NoError(err)
	require.False(used)
	require.NoError(b.Reserve(ctx, key))
}

func TestMemoryBackendZeroNonce(t *testing.T) {
	require := require.New(t)

	b := NewMemoryBackend()
	ctx := context.Background()
	key := NonceKey{SourceDomain: 3, Nonce: ids.Empty}

	used, err := b.IsUsed(ctx, key)
	require.NoError(err)
	require.True(used)

	require.ErrorIs(b.Reserve(ctx, key), ErrNonceUsed)

	// Releasing the zero nonce is a no-op, it stays used.
	require.NoError(b.Release(ctx, key))
	used, err = b.IsUsed(ctx, key)
	require.NoError(err)
	require.True(used)
}

func TestMemoryBackendMessages(t *testing.T) {
	require := require.New(t)

	b := NewMemoryBackend()
	ctx := context.Background()
	id := nonceID(0xAB)

	_, err := b.GetMessage(ctx, id)
	require.ErrorIs(err, ErrNotFound)

	record := &MessageRecord{
		Message:     []byte("raw message bytes"),
		Attestation: []byte("attestation bytes"),
		EventIndex:  7,
	}
	require.NoError(b.PutMessage(ctx, id, record))

	got, err := b.GetMessage(ctx, id)
	require.NoError(err)
	require.Equal(record, got)
}

func TestMessageRecordRoundTrip(t *testing.T) {
	require := require.New(t)

	record := &MessageRecord{
		Message:    []byte("raw message bytes"),
		EventIndex: 42,
	}

	encoded, err := record.Bytes()
	require.NoError(err)

	decoded, err := ParseMessageRecord(encoded)
	require.NoError(err)
	require.Equal(record.Message, decoded.Message)
	require.Empty(decoded.Attestation)
	require.Equal(record.EventIndex, decoded.EventIndex)

	_, err = ParseMessageRecord([]byte{0xFF, 0x01})
	require.Error(err)
}
