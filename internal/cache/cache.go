// Package cache provides the bounded, freshness-aware status cache.
//
// The cache is a fixed-capacity least-recently-used store. Both reads and
// writes count as a use. Entries are immutable values: an update replaces
// the entry wholesale, so a reader holding an old [Entry] never observes a
// concurrent mutation.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jpalmerr/refwatch/internal/checks"
)

const (
	// DefaultSize is the default number of refs kept in the cache.
	DefaultSize = 250

	// DefaultStaleAfter matches the remote API's own max-age; refreshing more
	// often would only be answered from an intermediate cache anyway.
	DefaultStaleAfter = 60 * time.Second
)

// Entry is the last known combined status of a ref.
//
// A nil Check is a valid cached outcome meaning "no checks exist for this
// ref". A failed fetch carries the previous Check forward, or nil when
// there was none.
type Entry struct {
	Check     *checks.Combined
	FetchedAt time.Time
}

// Cache is a thread-safe LRU of [Entry] values keyed by cache key.
type Cache struct {
	entries    *lru.Cache[string, Entry]
	staleAfter time.Duration
}

// New creates a cache holding at most size entries. onEvict, if non-nil, is
// invoked for every entry dropped by the LRU policy.
func New(size int, staleAfter time.Duration, onEvict func(key string)) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive, got %s", staleAfter)
	}

	var evict func(string, Entry)
	if onEvict != nil {
		evict = func(key string, _ Entry) { onEvict(key) }
	}

	entries, err := lru.NewWithEvict[string, Entry](size, evict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	return &Cache{entries: entries, staleAfter: staleAfter}, nil
}

// Get returns the entry for key and marks it as recently used.
func (c *Cache) Get(key string) (Entry, bool) {
	return c.entries.Get(key)
}

// Set stores entry under key, evicting the least recently used entry if the
// cache is full.
func (c *Cache) Set(key string, entry Entry) {
	c.entries.Add(key, entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// IsStale reports whether entry is older than the stale threshold at now.
func (c *Cache) IsStale(entry Entry, now time.Time) bool {
	return now.Sub(entry.FetchedAt) > c.staleAfter
}

// StaleAfter returns the configured stale threshold.
func (c *Cache) StaleAfter() time.Duration {
	return c.staleAfter
}
