package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the Redis cache.
type RedisOption func(*redisConfig)

type redisConfig struct {
	host     string
	port     int
	password string
	db       int
	poolSize int
	prefix   string
}

// WithRedisHost sets the server host.
func WithRedisHost(host string) RedisOption {
	return func(c *redisConfig) { c.host = host }
}

// WithRedisPort sets the server port.
func WithRedisPort(port int) RedisOption {
	return func(c *redisConfig) { c.port = port }
}

// WithRedisPassword sets the auth password.
func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) { c.password = password }
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) { c.db = db }
}

// WithRedisPool sets the connection pool size.
func WithRedisPool(size int) RedisOption {
	return func(c *redisConfig) { c.poolSize = size }
}

// WithRedisPrefix namespaces every key written by this cache.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.prefix = prefix }
}

// RedisCache is a Service backed by a Redis server. Values are JSON-encoded
// and keys are namespaced with the configured prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &redisConfig{
		host:     "localhost",
		port:     6379,
		poolSize: 10,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.host, cfg.port),
		Password: cfg.password,
		DB:       cfg.db,
		PoolSize: cfg.poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client, prefix: cfg.prefix}, nil
}

func (r *RedisCache) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return r.client.Set(ctx, r.key(key), data, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = r.key(k)
	}
	return r.client.Del(ctx, namespaced...).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
