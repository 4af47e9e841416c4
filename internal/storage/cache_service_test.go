package storage

import (
	"context"
	"testing"
	"time"

	"github.com/near-pulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Account string `json:"account"`
	Count   int    `json:"count"`
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{Prefix: "np:", TTL: 5 * time.Minute, FallbackCleanup: time.Minute}
}

func TestCacheService_GenerateCacheKey(t *testing.T) {
	c := NewCacheService(nil, testCacheConfig())

	assert.Equal(t, "np:balance:alice.near", c.GenerateCacheKey(CacheKeyBalance, "Alice.NEAR"))
	assert.Equal(t, "np:near_price", c.GenerateCacheKey(CacheKeyNearPrice))
	assert.Equal(t, c.GenerateCacheKey(CacheKeyStats, "bob.near"), c.GenerateCacheKey(CacheKeyStats, "BOB.near"))
}

func TestCacheService_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	c := NewCacheService(nil, testCacheConfig())
	assert.False(t, c.RedisEnabled())

	var got snapshot
	hit, err := c.Get(ctx, "np:nft:alice.near", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "np:nft:alice.near", snapshot{Account: "alice.near", Count: 3}))

	hit, err = c.Get(ctx, "np:nft:alice.near", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, snapshot{Account: "alice.near", Count: 3}, got)

	require.NoError(t, c.Invalidate(ctx, "np:nft:alice.near"))
	hit, err = c.Get(ctx, "np:nft:alice.near", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheService_WritesBothTiers(t *testing.T) {
	ctx := context.Background()
	redisCache, mr := setupMiniredis(t)
	c := NewCacheService(redisCache, testCacheConfig())

	require.NoError(t, c.Set(ctx, "np:stats:alice.near", snapshot{Account: "alice.near", Count: 7}))

	raw, err := mr.Get("np:stats:alice.near")
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"alice.near","count":7}`, raw)
	assert.InDelta(t, (5 * time.Minute).Seconds(), mr.TTL("np:stats:alice.near").Seconds(), 1)

	var got snapshot
	hit, err := c.Get(ctx, "np:stats:alice.near", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, got.Count)
}

func TestCacheService_FallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	redisCache, mr := setupMiniredis(t)
	c := NewCacheService(redisCache, testCacheConfig())

	require.NoError(t, c.Set(ctx, "np:txns:alice.near", snapshot{Account: "alice.near", Count: 1}))
	mr.Close()

	var got snapshot
	hit, err := c.Get(ctx, "np:txns:alice.near", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "alice.near", got.Account)

	// writes still succeed on the memory tier
	require.NoError(t, c.SetWithTTL(ctx, "np:nft:bob.near", snapshot{Account: "bob.near"}, time.Minute))
	hit, err = c.Get(ctx, "np:nft:bob.near", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "bob.near", got.Account)
}

func TestCacheService_RedisMissUsesMemory(t *testing.T) {
	ctx := context.Background()
	redisCache, mr := setupMiniredis(t)
	c := NewCacheService(redisCache, testCacheConfig())

	require.NoError(t, c.Set(ctx, "np:balance:alice.near", snapshot{Count: 2}))
	mr.Del("np:balance:alice.near")

	var got snapshot
	hit, err := c.Get(ctx, "np:balance:alice.near", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, got.Count)
}

func TestCacheService_UnmarshalError(t *testing.T) {
	ctx := context.Background()
	c := NewCacheService(nil, testCacheConfig())

	require.NoError(t, c.Set(ctx, "np:k", "plain string"))

	var got snapshot
	_, err := c.Get(ctx, "np:k", &got)
	assert.Error(t, err)
}
