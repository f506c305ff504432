package core

import (
	"sync"
	"time"
)

type cacheEntry struct {
	content   string
	expiresAt time.Time
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ResponseCache is a content-addressed, TTL-bounded store mapping a
// fingerprint of recent conversation turns to a previously generated reply.
// It is shared across in-flight turns and guarded by its own lock. Expiry is
// passive: entries are checked (and dropped) at read time; Sweep additionally
// allows a background goroutine to reclaim memory for keys never read again.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time // replaceable in tests
	hits    int64
	misses  int64
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached content for fingerprint, or ("", false) on a miss.
// A miss is a normal outcome, never an error.
func (c *ResponseCache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, fingerprint)
		c.misses++
		return "", false
	}
	c.hits++
	return entry.content, true
}

// Put stores content under fingerprint with the configured TTL from now.
// Entries are never updated in place; a new fingerprint is a new entry.
func (c *ResponseCache) Put(fingerprint, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{
		content:   content,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Sweep drops every expired entry and reports how many were removed.
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
