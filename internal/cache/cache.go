// Package cache provides short-TTL memoization of search responses, keyed
// by normalized query term. It absorbs bursts of identical queries so the
// remote platform is not re-hit within the TTL window.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/lensmirror/backend/internal/lens"
)

const (
	// DefaultTTL bounds how stale a memoized response may get.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often expired entries are reclaimed.
	DefaultSweepInterval = 10 * time.Minute
)

type entry struct {
	results   []lens.Lens
	expiresAt time.Time
}

// ResultCache is a concurrency-safe TTL map with last-writer-wins semantics
// on duplicate keys.
type ResultCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	entries  map[string]entry
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its background sweeper.
func New(ttl, sweepInterval time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &ResultCache{
		ttl:      ttl,
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Get returns the memoized response for the term, if still live.
func (c *ResultCache) Get(term string) ([]lens.Lens, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entries[normalize(term)]
	if !ok || time.Now().After(cached.expiresAt) {
		return nil, false
	}
	return cached.results, true
}

// Set memoizes a response for the term.
func (c *ResultCache) Set(term string, results []lens.Lens) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[normalize(term)] = entry{
		results:   results,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Stop terminates the background sweeper. Safe to call more than once.
func (c *ResultCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *ResultCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, cached := range c.entries {
				if now.After(cached.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
