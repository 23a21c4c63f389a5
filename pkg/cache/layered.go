package cache

import (
	"context"
	"time"
)

// LayeredCache fronts Redis with a small in-process layer. Writes go through
// to Redis; reads served from L1 skip the network entirely. Intended for
// single-writer keys, where L1 staleness cannot occur.
type LayeredCache struct {
	l1         *MemoryCache
	l2         *RedisCache
	promoteTTL time.Duration
}

// NewLayeredCache wraps an existing Redis cache with an L1 layer.
func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxEntries: 1000,
		PromoteTTL:       time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		l1:         NewMemoryCache(WithMemoryMaxEntries(cfg.MemoryMaxEntries)),
		l2:         l2,
		promoteTTL: cfg.PromoteTTL,
	}
}

// Set writes through: Redis first, so an L1 entry never outlives a failed
// durable write.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	ttl := expiration
	if ttl <= 0 || ttl > lc.promoteTTL {
		ttl = lc.promoteTTL
	}
	_ = lc.l1.Set(ctx, key, value, ttl)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	if p, ok := dest.(*string); ok {
		_ = lc.l1.Set(ctx, key, *p, lc.promoteTTL)
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

// Exists consults Redis only; L1 membership is a subset.
func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	_ = lc.l1.Delete(ctx, key)
	return lc.l2.Expire(ctx, key, expiration)
}

// Close shuts down both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
