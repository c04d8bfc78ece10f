package utils

import (
	"context"
	"sync"
	"time"
)

// CacheEntry represents a cached value with expiration. A zero ExpiresAt never expires.
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired at the given instant
func (e *CacheEntry[V]) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache represents an in-memory cache with TTL support
type Cache[V any] struct {
	data       map[string]*CacheEntry[V]
	mutex      sync.RWMutex
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCache creates a new in-memory cache. A defaultTTL of zero keeps entries
// for the lifetime of the process.
func NewCache[V any](defaultTTL time.Duration) *Cache[V] {
	return &Cache[V]{
		data:       make(map[string]*CacheEntry[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Tests use it to move past expiry.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if entry.IsExpired(c.now()) {
		c.Delete(key)
		return zero, false
	}
	return entry.Value, true
}

// GetEntry is like Get but also returns the expiry.
func (c *Cache[V]) GetEntry(key string) (CacheEntry[V], bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists || entry.IsExpired(c.now()) {
		return CacheEntry[V]{}, false
	}
	return *entry, true
}

// Update runs fn on the live entry for key while holding the write lock.
// fn may modify the entry in place; returning false deletes it. Update
// reports false without calling fn when the key is missing or expired.
func (c *Cache[V]) Update(key string, fn func(entry *CacheEntry[V]) (keep bool)) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.data[key]
	if !exists {
		return false
	}
	if entry.IsExpired(c.now()) {
		delete(c.data, key)
		return false
	}
	if !fn(entry) {
		delete(c.data, key)
	}
	return true
}

// Set stores a value in the cache with default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in the cache with custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	entry := &CacheEntry[V]{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}

	c.mutex.Lock()
	c.data[key] = entry
	c.mutex.Unlock()
}

// Delete removes a value from the cache
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
}

// Purge drops expired entries and reports how many were removed.
func (c *Cache[V]) Purge() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.data {
		if entry.IsExpired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// StartCleanup purges expired entries every interval until ctx is done.
func (c *Cache[V]) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Purge()
			}
		}
	}()
}
