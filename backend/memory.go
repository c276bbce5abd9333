// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"sync"

	"github.com/luxfi/ids"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-memory implementation of Backend
type MemoryBackend struct {
	mu       sync.RWMutex
	used     map[NonceKey]struct{}
	messages map[ids.ID]*MessageRecord
}

// NewMemoryBackend creates a new memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		used:     make(map[NonceKey]struct{}),
		messages: make(map[ids.ID]*MessageRecord),
	}
}

// Reserve marks the nonce as used
func (b *MemoryBackend) Reserve(_ context.Context, key NonceKey) error {
	if key.Nonce == ids.Empty {
		return ErrNonceUsed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.used[key]; ok {
		return ErrNonceUsed
	}
	b.used[key] = struct{}{}
	return nil
}

// Release frees a reservation
func (b *MemoryBackend) Release(_ context.Context, key NonceKey) error {
	if key.Nonce == ids.Empty {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.used, key)
	return nil
}

// IsUsed reports whether the nonce has been consumed
func (b *MemoryBackend) IsUsed(_ context.Context, key NonceKey) (bool, error) {
	if key.Nonce == ids.Empty {
		return true, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.used[key]
	return ok, nil
}

// PutMessage stores a sent message record
func (b *MemoryBackend) PutMessage(_ context.Context, id ids.ID, record *MessageRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages[id] = record
	return nil
}

// GetMessage retrieves a sent message record by ID
func (b *MemoryBackend) GetMessage(_ context.Context, id ids.ID) (*MessageRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}
