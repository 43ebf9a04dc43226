package cache

import (
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// TTL result cache keyed by (source, chain, address-or-query). Staleness is
// tolerated by design: expired entries are skipped on lookup and swept only
// when the size bound is hit, so no background eviction goroutine is needed.
// ---------------------------------------------------------------------------

const defaultMaxEntries = 10_000

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a bounded, mutex-guarded TTL store.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int

	now func() time.Time
}

// New creates a cache with the given TTL. maxEntries <= 0 uses the default bound.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key builds the composite cache key used across the pipeline.
func Key(source, chain, address string) string {
	return source + "|" + chain + "|" + address
}

// Get returns the stored value and true when present and fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores the value, always overwriting. When the bound is reached it
// first sweeps expired entries, then drops the oldest entry found.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// evictLocked removes expired entries; if none were expired, it removes the
// single oldest entry so the bound always holds.
func (c *Cache[V]) evictLocked() {
	now := c.now()
	removed := 0
	var oldestKey string
	var oldestAt time.Time

	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if removed == 0 && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the current entry count, expired entries included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
