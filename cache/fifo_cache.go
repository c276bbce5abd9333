// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
)

// FIFOCache is a thread-safe Get/Put cache that evicts the oldest entry once
// capacity is reached. It holds values that are cheap to recompute, such as
// signatures over already-observed messages.
type FIFOCache[K comparable, V any] struct {
	lk       sync.RWMutex
	cache    map[K]V
	queue    []K
	capacity int
}

// NewFIFOCache creates a new FIFO cache with the given capacity
func NewFIFOCache[K comparable, V any](capacity int) *FIFOCache[K, V] {
	return &FIFOCache[K, V]{
		cache:    make(map[K]V),
		queue:    make([]K, 0, capacity),
		capacity: capacity,
	}
}

// Get retrieves a value from the cache
func (c *FIFOCache[K, V]) Get(key K) (V, bool) {
	c.lk.RLock()
	defer c.lk.RUnlock()
	val, ok := c.cache[key]
	return val, ok
}

// Put adds a key-value pair to the cache, evicting the oldest entry if at capacity
func (c *FIFOCache[K, V]) Put(key K, val V) {
	c.lk.Lock()
	defer c.lk.Unlock()

	// If key already exists, don't add to queue again
	if _, exists := c.cache[key]; exists {
		c.cache[key] = val
		return
	}

	if len(c.queue) >= c.capacity {
		oldest := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = val
	c.queue = append(c.queue, key)
}

// Len returns the current number of items in the cache
func (c *FIFOCache[K, V]) Len() int {
	c.lk.RLock()
	defer c.lk.RUnlock()
	return len(c.cache)
}
