package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the Redis server backing the shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is a BytesCache shared across instances through Redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	data, err := r.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisCache) SetBytes(key string, data []byte, ttl time.Duration) error {
	return r.client.Set(context.Background(), key, data, ttl).Err()
}
