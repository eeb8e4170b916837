// Package cache provides a small key/value cache abstraction with in-memory,
// Redis, and layered (memory over Redis) implementations. Values are stored
// as JSON.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache operations contract shared by all implementations.
type Service interface {
	// Set stores value under key for the given TTL. A zero TTL means no
	// expiration.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get loads the value for key into dest, returning ErrCacheMiss when
	// absent.
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases any underlying resources.
	Close() error
}
