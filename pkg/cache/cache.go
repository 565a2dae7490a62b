// Package cache implements the multi-tier in-memory cache (C4): TTL+LRU
// eviction by last-accessed time, per-cache hit/miss/eviction stats, and a
// CachedOperation wrapper that never stores error outcomes.
package cache

import (
	"sync"
	"time"

	"github.com/ragmw/midtier/pkg/metrics"
)

// Entry is a single cached value with its lifecycle bookkeeping.
type Entry[V any] struct {
	Value        V
	CreatedAt    time.Time
	TTL          time.Duration
	AccessCount  int64
	LastAccessed time.Time
}

func (e *Entry[V]) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Stats holds the observable counters for one cache.
type Stats struct {
	Hits           int64
	Misses         int64
	Evictions      int64
	ExpiredEntries int64
	TotalEntries   int64
}

// HitRate returns hits/(hits+misses), or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a capacity-bounded, TTL-expiring, LRU-evicting key/value store.
// All mutations (including hit/miss accounting on reads) are serialized
// under a single writer lock.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[K]*Entry[V]
	stats    Stats
	now      func() time.Time

	met   *metrics.Metrics
	label string
}

// SetMetrics attaches a Metrics instance and a label ("embedding", "search",
// "chunk") this cache's hit/miss/eviction observations are reported under.
// Nil m disables observation.
func (c *Cache[K, V]) SetMetrics(m *metrics.Metrics, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.met = m
	c.label = label
}

// New creates a cache with the given capacity and default TTL.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[K]*Entry[V]),
		now:      time.Now,
	}
}

// Get returns the live value for k, recording a hit or miss. Expired
// entries are removed opportunistically on lookup.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[k]
	if !ok {
		c.stats.Misses++
		c.observeMiss()
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, k)
		c.stats.Misses++
		c.stats.ExpiredEntries++
		c.observeMiss()
		return zero, false
	}
	e.LastAccessed = c.now()
	e.AccessCount++
	c.stats.Hits++
	if c.met != nil {
		c.met.CacheHits.WithLabelValues(c.label).Inc()
	}
	return e.Value, true
}

// observeMiss increments the cache-miss collector if metrics are attached.
// Must hold mu.
func (c *Cache[K, V]) observeMiss() {
	if c.met != nil {
		c.met.CacheMisses.WithLabelValues(c.label).Inc()
	}
}

// Put inserts v under k with the default TTL, evicting the least-recently
// accessed entry if the cache is at capacity.
func (c *Cache[K, V]) Put(k K, v V) {
	c.PutWithTTL(k, v, c.ttl)
}

// PutWithTTL inserts v under k with a caller-supplied TTL.
func (c *Cache[K, V]) PutWithTTL(k K, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		c.evictLRU()
	}

	now := c.now()
	c.entries[k] = &Entry[V]{
		Value:        v,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
	}
}

// evictLRU removes the entry with the smallest LastAccessed. Must hold mu.
func (c *Cache[K, V]) evictLRU() {
	var oldestKey K
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.LastAccessed.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.LastAccessed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
		if c.met != nil {
			c.met.CacheEvictions.WithLabelValues(c.label).Inc()
		}
	}
}

// Remove deletes k if present.
func (c *Cache[K, V]) Remove(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*Entry[V])
}

// CleanupExpired removes every expired entry and returns how many were
// removed. Intended to be called periodically by a background sweeper.
func (c *Cache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.stats.ExpiredEntries += int64(removed)
	return removed
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.TotalEntries = int64(len(c.entries))
	return s
}
