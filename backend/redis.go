// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backend

import (
	"context"
	"fmt"

	"github.com/luxfi/log"
	"github.com/redis/go-redis/v9"

	"github.com/luxfi/ids"
)

var _ Backend = (*RedisBackend)(nil)

// RedisBackend persists nonce and message state in Redis so multiple
// transmitter instances can share it.
type RedisBackend struct {
	logger log.Logger
	client *redis.Client
}

// NewRedisBackend connects to the Redis instance at redisURL.
// The server address, password, db index, and protocol version are extracted
// from the URL. Request timeouts use the default value of 3 seconds.
func NewRedisBackend(logger log.Logger, redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("failed to parse Redis URL", log.Err(err))
		return nil, err
	}

	client := redis.NewClient(opts)
	return &RedisBackend{
		logger: logger,
		client: client,
	}, nil
}

// Reserve marks the nonce as used. The SETNX write is atomic, so concurrent
// receives of the same nonce reserve it exactly once.
func (r *RedisBackend) Reserve(ctx context.Context, key NonceKey) error {
	if key.Nonce == ids.Empty {
		return ErrNonceUsed
	}

	ok, err := r.client.SetNX(ctx, nonceRedisKey(key), "1", 0).Result()
	if err != nil {
		r.logger.Error("error reserving nonce in Redis",
			log.String("key", nonceRedisKey(key)),
			log.Err(err))
		return err
	}
	if !ok {
		return ErrNonceUsed
	}
	return nil
}

// Release frees a reservation
func (r *RedisBackend) Release(ctx context.Context, key NonceKey) error {
	if key.Nonce == ids.Empty {
		return nil
	}

	if err := r.client.Del(ctx, nonceRedisKey(key)).Err(); err != nil {
		r.logger.Error("error releasing nonce in Redis",
			log.String("key", nonceRedisKey(key)),
			log.Err(err))
		return err
	}
	return nil
}

// IsUsed reports whether the nonce has been consumed
func (r *RedisBackend) IsUsed(ctx context.Context, key NonceKey) (bool, error) {
	if key.Nonce == ids.Empty {
		return true, nil
	}

	n, err := r.client.Exists(ctx, nonceRedisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PutMessage stores a sent message record
func (r *RedisBackend) PutMessage(ctx context.Context, id ids.ID, record *MessageRecord) error {
	encoded, err := record.Bytes()
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, messageRedisKey(id), encoded, 0).Err(); err != nil {
		r.logger.Error("error storing message in Redis",
			log.String("key", messageRedisKey(id)),
			log.Err(err))
		return err
	}
	return nil
}

// GetMessage retrieves a sent message record by ID
func (r *RedisBackend) GetMessage(ctx context.Context, id ids.ID) (*MessageRecord, error) {
	val, err := r.client.Get(ctx, messageRedisKey(id)).Result()
	if err != nil {
		r.logger.Debug("error retrieving message from Redis",
			log.String("key", messageRedisKey(id)),
			log.Err(err))
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ParseMessageRecord([]byte(val))
}

// Close releases the Redis connection
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func nonceRedisKey(key NonceKey) string {
	return fmt.Sprintf("cctp:nonce:%d:%s", key.SourceDomain, key.Nonce)
}

func messageRedisKey(id ids.ID) string {
	return fmt.Sprintf("cctp:message:%s", id)
}
