package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each key as a JSON string under a fixed key prefix.
// It shares the same client shape the execution controls' result-cache L2
// tier uses, reused here for a second purpose: a durable KV-shaped
// backing store rather than a cache.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an already-configured redis.Client.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}

// Put JSON-encodes value and writes it with no expiration.
func (b *RedisBackend) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal value for key %q: %w", key, err)
	}
	if err := b.client.Set(ctx, b.fullKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("storage: set key %q: %w", key, err)
	}
	return nil
}
