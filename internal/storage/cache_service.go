package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/config"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/metrics"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CacheService stores whole-result JSON snapshots. Redis is optional; the
// in-process tier is always written so a Redis outage only costs latency.
type CacheService struct {
	redis  *RedisCache
	memory *gocache.Cache
	ttl    time.Duration
	prefix string
}

// NewCacheService creates a new cache service. redis may be nil.
func NewCacheService(redis *RedisCache, cfg config.CacheConfig) *CacheService {
	return &CacheService{
		redis:  redis,
		memory: gocache.New(cfg.TTL, cfg.FallbackCleanup),
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyBalance is for balance views
	CacheKeyBalance CacheKeyType = "balance"
	// CacheKeyTransactions is for activity feeds
	CacheKeyTransactions CacheKeyType = "txns"
	// CacheKeyStats is for analytics summaries
	CacheKeyStats CacheKeyType = "stats"
	// CacheKeyNFT is for NFT listings
	CacheKeyNFT CacheKeyType = "nft"
	// CacheKeyNearPrice is for the NEAR reference rate
	CacheKeyNearPrice CacheKeyType = "near_price"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <prefix><type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(param))
	}
	return c.prefix + strings.Join(parts, ":")
}

// Set stores a value with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL. Redis failures are logged, not returned.
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.memory.Set(key, data, ttl)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, ttl); err != nil {
			logging.FromContext(ctx).WithField("key", key).WithError(err).Warn("Redis write failed")
		}
	}
	return nil
}

// Get retrieves a value and deserializes it into dest. Redis is tried first, then
// the in-process tier.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues(metrics.TierRedis, metrics.ResultHit).Inc()
			if err := json.Unmarshal([]byte(data), dest); err != nil {
				return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
			}
			return true, nil
		case stderrors.Is(err, redis.Nil):
			metrics.CacheLookups.WithLabelValues(metrics.TierRedis, metrics.ResultMiss).Inc()
		default:
			metrics.CacheLookups.WithLabelValues(metrics.TierRedis, metrics.ResultError).Inc()
			logging.FromContext(ctx).WithField("key", key).WithError(err).Warn("Redis read failed, using memory tier")
		}
	}

	raw, ok := c.memory.Get(key)
	if !ok {
		metrics.CacheLookups.WithLabelValues(metrics.TierMemory, metrics.ResultMiss).Inc()
		return false, nil
	}
	metrics.CacheLookups.WithLabelValues(metrics.TierMemory, metrics.ResultHit).Inc()

	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from both tiers
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		c.memory.Delete(k)
	}
	if c.redis != nil {
		return c.redis.Del(ctx, keys...)
	}
	return nil
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}

// RedisEnabled reports whether a Redis tier is attached
func (c *CacheService) RedisEnabled() bool {
	return c.redis != nil
}
