package tool

import (
	"sync"
	"time"
)

// ResultCache is a small TTL cache for tool results, avoiding redundant
// identical queries within a short window. The clock is injected so tests
// control eviction; eviction is lazy, on lookup.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	content string
	expires time.Time
}

// NewResultCache creates a cache with the given TTL. A nil clock uses
// time.Now. A non-positive TTL disables caching entirely.
func NewResultCache(ttl time.Duration, clock func() time.Time) *ResultCache {
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     clock,
	}
}

// Get returns the cached content for key if it is still fresh.
func (c *ResultCache) Get(key string) (string, bool) {
	if c == nil || c.ttl <= 0 {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.content, true
}

// Put stores content under key with the configured TTL.
func (c *ResultCache) Put(key, content string) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		content: content,
		expires: c.now().Add(c.ttl),
	}
}
