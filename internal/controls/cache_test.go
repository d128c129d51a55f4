package controls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg CacheConfig) *ResultCache {
	t.Helper()
	c, err := NewResultCache(cfg)
	require.NoError(t, err)
	return c
}

func TestFingerprintIsStableAcrossKeyOrder(t *testing.T) {
	f1, err := Fingerprint("ApiCall", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	f2, err := Fingerprint("ApiCall", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestFingerprintDiffersByKind(t *testing.T) {
	f1, _ := Fingerprint("ApiCall", map[string]any{"a": 1})
	f2, _ := Fingerprint("FilterData", map[string]any{"a": 1})
	assert.NotEqual(t, f1, f2)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t, DefaultCacheConfig())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "key1", "ApiCall", map[string]any{"result": 42}))

	var out map[string]any
	ok := c.Get(ctx, "key1", &out)
	require.True(t, ok)
	assert.Equal(t, float64(42), out["result"])
}

func TestNeverCacheZeroTTLKind(t *testing.T) {
	c := newTestCache(t, DefaultCacheConfig())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "key1", "StoreData", map[string]any{"ok": true}))

	var out map[string]any
	ok := c.Get(ctx, "key1", &out)
	assert.False(t, ok)
}

func TestGetMissIncrementsMisses(t *testing.T) {
	c := newTestCache(t, DefaultCacheConfig())
	var out map[string]any
	c.Get(context.Background(), "missing", &out)
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestExpiredEntryIsTreatedAsMiss(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.OperationTTL["ApiCall"] = time.Millisecond
	c := newTestCache(t, cfg)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "ApiCall", 1))
	time.Sleep(5 * time.Millisecond)

	var out int
	ok := c.Get(ctx, "k", &out)
	assert.False(t, ok)
}

func TestLRUEvictsOldestWhenOverCapacity(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.MaxEntries = 2
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "ApiCall", 1))
	require.NoError(t, c.Set(ctx, "b", "ApiCall", 2))
	require.NoError(t, c.Set(ctx, "c", "ApiCall", 3))

	var out int
	assert.False(t, c.Get(ctx, "a", &out))
	assert.True(t, c.Get(ctx, "b", &out))
	assert.True(t, c.Get(ctx, "c", &out))
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestGetPromotesEntryOutOfEvictionOrder(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.MaxEntries = 2
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "ApiCall", 1))
	require.NoError(t, c.Set(ctx, "b", "ApiCall", 2))

	var out int
	c.Get(ctx, "a", &out) // touch a, making b the LRU victim

	require.NoError(t, c.Set(ctx, "c", "ApiCall", 3))
	assert.True(t, c.Get(ctx, "a", &out))
	assert.False(t, c.Get(ctx, "b", &out))
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := newTestCache(t, DefaultCacheConfig())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "ApiCall", 1))
	c.Invalidate("k")

	var out int
	assert.False(t, c.Get(ctx, "k", &out))
}

func TestClearResetsCountersAndEntries(t *testing.T) {
	c := newTestCache(t, DefaultCacheConfig())
	ctx := context.Background()
	c.Set(ctx, "k", "ApiCall", 1)
	var out int
	c.Get(ctx, "k", &out)

	c.Clear()
	stats := c.Stats()
	assert.Zero(t, stats.Size)
	assert.Zero(t, stats.Hits)
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.OperationTTL["ApiCall"] = time.Millisecond
	cfg.OperationTTL["FilterData"] = time.Hour
	c := newTestCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "ApiCall", 1))
	require.NoError(t, c.Set(ctx, "long", "FilterData", 2))
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.EqualValues(t, 1, c.Stats().Size)
}
