package controls

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// CacheConfig bounds the result cache's size and per-kind TTLs.
type CacheConfig struct {
	Enabled      bool
	MaxEntries   int
	DefaultTTL   time.Duration
	OperationTTL map[string]time.Duration
	RedisAddr    string
}

// DefaultCacheConfig mirrors the original system's defaults: ApiCall
// results are cached longest, data-shaping operations briefly, and
// anything with side effects or unbounded duration is never cached.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		MaxEntries: 1000,
		DefaultTTL: 300 * time.Second,
		OperationTTL: map[string]time.Duration{
			"ApiCall":       300 * time.Second,
			"FilterData":    60 * time.Second,
			"TransformData": 60 * time.Second,
			"MergeData":     60 * time.Second,
			"StoreData":     0,
			"Wait":          0,
			"Loop":          0,
			"Conditional":   0,
		},
	}
}

// ttlFor returns the TTL for an operation kind, falling back to the
// default; a zero TTL means the kind is never cached.
func (c CacheConfig) ttlFor(kind string) time.Duration {
	if ttl, ok := c.OperationTTL[kind]; ok {
		return ttl
	}
	return c.DefaultTTL
}

type cacheEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
	hits      int
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// ResultCache is an in-process LRU cache of operation results, fronted by
// an optional Redis tier for cross-instance sharing. A zero-TTL entry (per
// CacheConfig.ttlFor) is never stored.
type ResultCache struct {
	mu      sync.Mutex
	config  CacheConfig
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	redis *redisTier

	hits, misses, sets, evictions int64
}

// NewResultCache builds a ResultCache, connecting to Redis if configured.
func NewResultCache(config CacheConfig) (*ResultCache, error) {
	tier, err := newRedisTier(config.RedisAddr)
	if err != nil {
		return nil, err
	}
	return &ResultCache{
		config:  config,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		redis:   tier,
	}, nil
}

// Fingerprint computes the cache key for an operation of the given kind
// with the given config, matching the original system's "canonicalize and
// hash" strategy: JSON-encode {kind, config} with sorted map keys (Go's
// encoding/json already sorts map keys) and SHA-256 the result.
func Fingerprint(kind string, config any) (string, error) {
	payload := struct {
		Type   string `json:"type"`
		Config any    `json:"config"`
	}{Type: kind, Config: config}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get looks up a cached result by fingerprint. A local hit moves the entry
// to the front of the LRU list; a local miss falls through to the Redis
// tier. A Redis hit is returned to the caller but is not copied into the
// local LRU.
func (c *ResultCache) Get(ctx context.Context, key string, out any) bool {
	if !c.config.Enabled {
		return false
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		if !entry.expired(time.Now()) {
			c.order.MoveToFront(el)
			entry.hits++
			raw := entry.value
			c.hits++
			c.mu.Unlock()
			return json.Unmarshal(raw, out) == nil
		}
		c.removeLocked(el)
	}
	c.mu.Unlock()

	var raw json.RawMessage
	if c.redis.get(ctx, key, &raw) {
		if err := json.Unmarshal(raw, out); err == nil {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return false
}

// Set stores a result under key for the given operation kind's TTL. A kind
// whose TTL resolves to zero is not cached at all.
func (c *ResultCache) Set(ctx context.Context, key, kind string, value any) error {
	if !c.config.Enabled {
		return nil
	}
	ttl := c.config.ttlFor(kind)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = data
		entry.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(el)
	} else {
		entry := &cacheEntry{key: key, value: data, expiresAt: time.Now().Add(ttl)}
		el := c.order.PushFront(entry)
		c.entries[key] = el
		c.evictOverflowLocked()
	}
	c.sets++
	c.mu.Unlock()

	c.redis.set(ctx, key, json.RawMessage(data), ttl)
	return nil
}

// evictOverflowLocked drops least-recently-used entries until the cache is
// back within MaxEntries. Caller must hold c.mu.
func (c *ResultCache) evictOverflowLocked() {
	for c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// removeLocked deletes el from both the index and the LRU list. Caller
// must hold c.mu.
func (c *ResultCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

// Invalidate drops a single cached key.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops every local entry and resets the counters.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
	c.hits, c.misses, c.sets, c.evictions = 0, 0, 0, 0
}

// CleanupExpired sweeps the LRU list for expired entries, used by a
// periodic background task rather than relying solely on lazy eviction.
func (c *ResultCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if entry.expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns a snapshot of the cache's effectiveness counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// Close releases the Redis tier connection, if any.
func (c *ResultCache) Close() error {
	return c.redis.close()
}
