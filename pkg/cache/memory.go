package cache

import (
	"context"
	"sync"
	"time"
)

const memoryDefaultTTL = 24 * time.Hour

type memoryEntry struct {
	value    interface{}
	expireAt time.Time
	touched  time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache is an in-process Service with LRU eviction. It backs local
// development and the Redis-disabled topology.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	janitor    *time.Ticker
	done       chan struct{}
}

// NewMemoryCache creates an in-process cache with a background janitor that
// drops expired entries.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: cfg.MaxEntries,
		janitor:    time.NewTicker(cfg.CleanupInterval),
		done:       make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	now := time.Now()
	if expiration <= 0 {
		expiration = memoryDefaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.entries[key]; !ok && len(mc.entries) >= mc.maxEntries {
		mc.evictOldest()
	}
	mc.entries[key] = &memoryEntry{value: value, expireAt: now.Add(expiration), touched: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	e, ok := mc.entries[key]
	if !ok || e.expired(now) {
		if ok {
			delete(mc.entries, key)
		}
		return ErrCacheMiss
	}
	e.touched = now

	if p, ok := dest.(*string); ok {
		if s, ok := e.value.(string); ok {
			*p = s
			return nil
		}
	}
	*dest.(*interface{}) = e.value
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.entries, k)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if e, ok := mc.entries[k]; ok && !e.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if e, ok := mc.entries[key]; ok {
		e.expireAt = time.Now().Add(expiration)
		return true, nil
	}
	return false, nil
}

// evictOldest drops the least recently touched entry. Caller holds mc.mu.
func (mc *MemoryCache) evictOldest() {
	var victim string
	oldest := time.Now()
	for k, e := range mc.entries {
		if e.touched.Before(oldest) {
			oldest = e.touched
			victim = k
		}
	}
	if victim != "" {
		delete(mc.entries, victim)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.janitor.C:
			now := time.Now()
			mc.mu.Lock()
			for k, e := range mc.entries {
				if e.expired(now) {
					delete(mc.entries, k)
				}
			}
			mc.mu.Unlock()
		case <-mc.done:
			return
		}
	}
}

// Close stops the janitor goroutine.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	close(mc.done)
	return nil
}
