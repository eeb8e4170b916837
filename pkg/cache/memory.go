package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryOption configures the in-memory cache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of entries held in memory.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(m *MemoryCache) { m.maxSize = n }
}

// WithMemoryCleanup overrides the expiry sweep interval.
func WithMemoryCleanup(d time.Duration) MemoryOption {
	return func(m *MemoryCache) { m.sweepEvery = d }
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is a process-local Service backed by a map with TTL sweeping.
// When full, Set evicts the entry closest to expiry.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	maxSize    int
	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a memory cache and starts its expiry sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		entries:    make(map[string]memEntry),
		maxSize:    1000,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

func (m *MemoryCache) sweep() {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if e.expired(now) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.evictLocked()
	}
	m.entries[key] = entry
	return nil
}

// evictLocked drops the entry with the earliest expiry, or an arbitrary
// non-expiring one if none expire.
func (m *MemoryCache) evictLocked() {
	var victim string
	var soonest time.Time
	for k, e := range m.entries {
		if victim == "" || (!e.expiresAt.IsZero() && (soonest.IsZero() || e.expiresAt.Before(soonest))) {
			victim = k
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(m.entries, victim)
	}
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return ErrCacheMiss
	}
	return json.Unmarshal(entry.data, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Close stops the expiry sweeper.
func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
