package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is the L1 tier: an in-memory LRU with sliding TTL and per-entry
// schema versioning. A version mismatch on read behaves exactly like absence,
// so a schema bump silently invalidates every prior entry.
type LRUCache struct {
	capacity   int
	defaultTTL time.Duration
	mu         sync.Mutex

	cache map[string]*entry
	order *list.List // most recently accessed at front
}

type entry struct {
	key        string
	value      []byte
	version    int
	createdAt  time.Time
	accessedAt time.Time
	expiresAt  time.Time
	element    *list.Element
}

// NewLRUCache creates the L1 cache.
func NewLRUCache(capacity int, defaultTTL time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 500
	}
	if defaultTTL <= 0 {
		defaultTTL = 12 * time.Hour
	}

	return &LRUCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		cache:      make(map[string]*entry),
		order:      list.New(),
	}
}

// Get retrieves a value written under the given schema version. A hit
// refreshes the sliding expiration and recency.
func (c *LRUCache) Get(key string, version int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		c.removeEntry(e)
		return nil, false
	}
	if e.version != version {
		// Stale schema. Drop it now rather than waiting for expiry.
		c.removeEntry(e)
		return nil, false
	}

	// Sliding expiration: every read pushes the deadline out.
	e.accessedAt = now
	e.expiresAt = now.Add(c.defaultTTL)
	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value under the given schema version. Insertion past capacity
// evicts the least-recently-accessed entry.
func (c *LRUCache) Set(key string, value []byte, version int, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.cache[key]; ok {
		e.value = value
		e.version = version
		e.accessedAt = now
		e.expiresAt = now.Add(ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.cache) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{
		key:        key,
		value:      value,
		version:    version,
		createdAt:  now,
		accessedAt: now,
		expiresAt:  now.Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.cache[key] = e
}

// Delete removes a key.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[key]; ok {
		c.removeEntry(e)
	}
}

// Size returns the number of entries in the cache.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Clear removes all entries from the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*entry)
	c.order.Init()
}

// evictOldest removes the least recently accessed entry.
// Must be called with lock held.
func (c *LRUCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry))
}

// removeEntry removes an entry from the cache.
// Must be called with lock held.
func (c *LRUCache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
}

// CleanupExpired removes all expired entries and returns how many went.
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry
	now := time.Now()
	for _, e := range c.cache {
		if now.After(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	return len(toDelete)
}
