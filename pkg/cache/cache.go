// Package cache provides a small TTL cache used as a stale-read fallback
// when the upstream provider is throttling.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL suits thread snapshots: long enough to survive a throttling
// episode, short enough that a served-stale thread is still recent.
const DefaultTTL = time.Minute

type entry struct {
	value     interface{}
	storedAt  time.Time
	expiresAt time.Time
}

// TTLCache is a concurrency-safe key/value cache with a fixed time-to-live.
// The clock is injectable so tests can control expiry.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func New(ttl time.Duration) *TTLCache {
	return NewWithClock(ttl, time.Now)
}

func NewWithClock(ttl time.Duration, now func() time.Time) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry),
	}
}

func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	c.entries[key] = entry{value: value, storedAt: t, expiresAt: t.Add(c.ttl)}
}

// Get returns the cached value if present and not expired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// GetStale returns the cached value even if expired. Used as a degraded
// fallback when the upstream is unavailable.
func (c *TTLCache) GetStale(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
