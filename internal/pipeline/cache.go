package pipeline

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
)

// extractCache memoizes successful extractions so repeated triggers within
// the TTL do not re-issue the expensive generation call.
type extractCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	extraction Extraction
	fetchedAt  time.Time
}

func newExtractCache(ttl time.Duration) *extractCache {
	return &extractCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *extractCache) lookup(key string) (Extraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Extraction{}, false
	}

	if c.now().Sub(entry.fetchedAt) > c.ttl {
		delete(c.entries, key)
		return Extraction{}, false
	}

	return entry.extraction, true
}

func (c *extractCache) store(key string, extraction Extraction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{extraction: extraction, fetchedAt: c.now()}
}

// hashKey derives a stable cache key from the mission and config values that
// shape the generation prompt.
func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum[:])
}
