package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/duckstack/duckstack/pkg/models"
)

// Cache is a process-local TTL cache of tabular results keyed by request
// fingerprint. Expired entries are evicted lazily, on the first lookup that
// observes them; there is no background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time // injectable for deterministic tests

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry struct {
	value     *models.TabularResult
	expiresAt time.Time
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached result for key. An entry whose expiry instant has
// passed is reported absent and removed.
func (c *Cache) Get(key string) (*models.TabularResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.evictions.Add(1)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key, replacing any existing entry. The TTL window
// always restarts at the time of the call.
func (c *Cache) Put(key string, value *models.TabularResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes the entry for key, if any.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.evictions.Add(int64(n))
	return n
}

// Stats returns cache performance metrics. Entries counts stored entries,
// including expired ones not yet evicted.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()

	return models.CacheStats{
		Entries:   int64(n),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close drops all entries. The cache must not be used afterwards.
func (c *Cache) Close() error {
	c.Clear()
	return nil
}
