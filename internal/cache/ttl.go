package cache

import (
	"sync"
	"time"
)

// Cache is a small keyed store with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	// Purge drops every entry.
	Purge()
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]entry[V]
	maxSize int
	now     func() time.Time
}

// NewTTLCache returns an in-process cache. A zero ttl on Set never expires.
// When maxSize is reached, expired entries are swept and, failing that, an
// arbitrary entry is evicted.
func NewTTLCache[K comparable, V any](maxSize int) Cache[K, V] {
	return &ttlCache[K, V]{
		items:   make(map[K]entry[V]),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Purge() {
	c.mu.Lock()
	c.items = make(map[K]entry[V])
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[K, V]) evictLocked() {
	now := c.now()
	for k, item := range c.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.maxSize {
		return
	}
	for k := range c.items {
		delete(c.items, k)
		return
	}
}
