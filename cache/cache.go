// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc is the function signature for fetching values
type FetchFunc[K comparable, V any] func(key K) (V, error)

type item[V any] struct {
	value     V
	timestamp time.Time
}

// Cache is a bounded cache with per-key TTL tracking and single-flight fetch.
// Entries are evicted oldest-first once capacity is reached, so a burst of
// distinct keys cannot grow the cache without bound.
type Cache[K comparable, V any] struct {
	data     map[K]item[V]
	queue    []K
	capacity int
	ttl      time.Duration
	lock     sync.RWMutex
	sfGroup  singleflight.Group
}

// New creates a cache holding at most capacity entries, each fresh for ttl.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		data:     make(map[K]item[V]),
		queue:    make([]K, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get checks if the cached value is fresh for a given key, otherwise fetches
// the value using fetchFunc. Concurrent fetches for the same key are deduplicated.
// If [invalidate] is true, the value will be cleared from the cache prior to fetching.
// This is done explicitly instead of just overwriting the value to prevent other
// threads from reading the already stale value. Any other requests fetching the
// same data will be deduplicated and get the same return value.
func (c *Cache[K, V]) Get(key K, fetchFunc FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		c.remove(key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		it, exists := c.data[key]
		c.lock.RUnlock()
		if exists && time.Since(it.timestamp) < c.ttl {
			return it.value, nil
		}
	}

	keyStr := keyToString(key)

	v, err, _ := c.sfGroup.Do(keyStr, func() (interface{}, error) {
		newValue, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}

		c.lock.Lock()
		c.set(key, newValue)
		c.lock.Unlock()

		return newValue, nil
	})

	if err != nil {
		return *new(V), err
	}

	return v.(V), nil
}

// Len returns the current number of items in the cache
func (c *Cache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

// set adds a key-value pair, evicting the oldest entry if at capacity.
// Caller must hold the write lock.
func (c *Cache[K, V]) set(key K, value V) {
	if _, exists := c.data[key]; exists {
		c.data[key] = item[V]{value: value, timestamp: time.Now()}
		return
	}

	if len(c.queue) >= c.capacity {
		oldest := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.data, oldest)
	}

	c.data[key] = item[V]{value: value, timestamp: time.Now()}
	c.queue = append(c.queue, key)
}

// remove deletes a key and its queue slot. Caller must hold the write lock.
func (c *Cache[K, V]) remove(key K) {
	if _, exists := c.data[key]; !exists {
		return
	}
	delete(c.data, key)
	for i, k := range c.queue {
		if k == key {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
}

// keyToString is defined to allow for both fmt.Stringer and primitive string types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
