// This file implements the result cache's optional Redis L2 tier: when an
// operator configures a Redis address, cached operation results are shared
// across every a2e-exec instance instead of living only in the local LRU.
//
// Features:
// - Connection pooling (25 max connections, 5 min idle)
// - Tier disabled when no address is configured; a configured address
//   that does not answer a ping makes construction fail with an error
// - JSON serialization/deserialization, TTL-based expiration
//
// The in-process LRU (cache.go) is always checked first; this tier is only
// consulted on a local miss, and only written to on a local set.
package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTier is the optional cross-instance cache backing for the result
// cache. A nil client means the tier is disabled and every call is a no-op.
type redisTier struct {
	client *redis.Client
}

// newRedisTier connects to addr, or returns a disabled tier if addr is
// empty.
func newRedisTier(addr string) (*redisTier, error) {
	if addr == "" {
		return &redisTier{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("controls: ping redis: %w", err)
	}

	return &redisTier{client: client}, nil
}

func (t *redisTier) enabled() bool {
	return t != nil && t.client != nil
}

func (t *redisTier) get(ctx context.Context, key string, target any) bool {
	if !t.enabled() {
		return false
	}
	val, err := t.client.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), target); err != nil {
		return false
	}
	return true
}

func (t *redisTier) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !t.enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = t.client.Set(ctx, key, data, ttl).Err()
}

func (t *redisTier) close() error {
	if !t.enabled() {
		return nil
	}
	return t.client.Close()
}
