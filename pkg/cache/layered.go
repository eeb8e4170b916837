package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a small in-process cache in front of Redis.
// Writes go to Redis first so a failed write never leaves memory ahead of
// the shared layer.
type LayeredCache struct {
	local  *MemoryCache
	shared *RedisCache
}

// NewLayeredCache wraps an existing Redis cache with a memory front.
func NewLayeredCache(shared *RedisCache) *LayeredCache {
	return &LayeredCache{
		local:  NewMemoryCache(),
		shared: shared,
	}
}

func (l *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := l.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = l.local.Set(ctx, key, value, ttl)
	return nil
}

func (l *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := l.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := l.shared.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = l.local.Set(ctx, key, dest, 0)
	return nil
}

func (l *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = l.local.Delete(ctx, keys...)
	return l.shared.Delete(ctx, keys...)
}

func (l *LayeredCache) Close() error {
	_ = l.local.Close()
	return l.shared.Close()
}
