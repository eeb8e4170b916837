// Package cache provides the byte-oriented response cache used by the HTTP
// handlers, with in-process and Redis backends.
package cache

import "time"

// BytesCache stores opaque byte payloads with a TTL.
type BytesCache interface {
	GetBytes(key string) (data []byte, ok bool, err error)
	SetBytes(key string, data []byte, ttl time.Duration) error
}
