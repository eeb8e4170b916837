package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	data    []byte
	expires time.Time
}

// TTLCache is a process-local BytesCache. Expired entries are dropped on
// read; there is no background sweeper.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (c *TTLCache) SetBytes(key string, data []byte, ttl time.Duration) error {
	entry := ttlEntry{data: data}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}
