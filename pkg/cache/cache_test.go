package cache

import (
	"testing"
	"time"
)

func TestCacheGetMissOnEmpty(t *testing.T) {
	c := New[string, int](10, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", c.Stats().Misses)
	}
}

func TestCachePutGetHit(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with value 1, got %v %v", v, ok)
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", c.Stats().Hits)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[string, int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("a", 1)

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Stats().ExpiredEntries != 1 {
		t.Fatalf("expected 1 expired entry, got %d", c.Stats().ExpiredEntries)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := New[string, int](2, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("a", 1)

	c.now = func() time.Time { return now.Add(time.Second) }
	c.Put("b", 2)

	// touch "a" so it becomes more recently used than "b"
	c.now = func() time.Time { return now.Add(2 * time.Second) }
	c.Get("a")

	c.now = func() time.Time { return now.Add(3 * time.Second) }
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be removed")
	}
	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected clear to remove all entries")
	}
}

func TestCacheCleanupExpired(t *testing.T) {
	c := New[string, int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("a", 1)
	c.Put("b", 2)

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	removed := c.CleanupExpired()
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if c.Stats().TotalEntries != 0 {
		t.Fatalf("expected 0 entries remaining, got %d", c.Stats().TotalEntries)
	}
}

func TestCachePutWithTTLOverridesDefault(t *testing.T) {
	c := New[string, int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.PutWithTTL("a", 1, 5*time.Second)

	c.now = func() time.Time { return now.Add(10 * time.Second) }
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected short-TTL entry to have expired")
	}
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1}
	if rate := s.HitRate(); rate != 0.75 {
		t.Fatalf("expected hit rate 0.75, got %f", rate)
	}
	if (Stats{}).HitRate() != 0 {
		t.Fatal("expected zero hit rate with no lookups")
	}
}
