package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(nil)
	if m.Embedding.capacity != EmbeddingCapacity || m.Embedding.ttl != EmbeddingTTL {
		t.Fatalf("unexpected embedding cache defaults: capacity=%d ttl=%s", m.Embedding.capacity, m.Embedding.ttl)
	}
	if m.Search.capacity != SearchCapacity || m.Search.ttl != SearchTTL {
		t.Fatalf("unexpected search cache defaults: capacity=%d ttl=%s", m.Search.capacity, m.Search.ttl)
	}
	if m.Chunk.capacity != ChunkCapacity || m.Chunk.ttl != ChunkTTL {
		t.Fatalf("unexpected chunk cache defaults: capacity=%d ttl=%s", m.Chunk.capacity, m.Chunk.ttl)
	}
}

func TestEmbeddingCacheKeyStableForSameInput(t *testing.T) {
	k1 := NewEmbeddingCacheKey("hello world", "text-embedding-3")
	k2 := NewEmbeddingCacheKey("hello world", "text-embedding-3")
	if k1 != k2 {
		t.Fatal("expected identical keys for identical text and model")
	}
	k3 := NewEmbeddingCacheKey("hello world", "other-model")
	if k1 == k3 {
		t.Fatal("expected different keys for different models")
	}
}

func TestSearchCacheKeyQuantizesThreshold(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	t1 := 0.7001
	t2 := 0.7004
	k1 := NewSearchCacheKey(vec, 5, &t1)
	k2 := NewSearchCacheKey(vec, 5, &t2)
	if k1 != k2 {
		t.Fatal("expected thresholds within the same 1e-3 bucket to collide")
	}

	t3 := 0.8
	k3 := NewSearchCacheKey(vec, 5, &t3)
	if k1 == k3 {
		t.Fatal("expected distinctly different thresholds to produce different keys")
	}
}

func TestSearchCacheKeyNilThreshold(t *testing.T) {
	vec := []float32{0.1, 0.2}
	k := NewSearchCacheKey(vec, 10, nil)
	if k.Threshold != 0 {
		t.Fatalf("expected zero threshold component, got %d", k.Threshold)
	}
}

func TestCachedOperationStoresOnSuccess(t *testing.T) {
	c := New[string, int](10, time.Minute)
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}
	v, err := CachedOperation(context.Background(), c, "a", op)
	if err != nil || v != 42 {
		t.Fatalf("unexpected result: %v %v", v, err)
	}
	v, err = CachedOperation(context.Background(), c, "a", op)
	if err != nil || v != 42 || calls != 1 {
		t.Fatalf("expected cached result without a second call, calls=%d", calls)
	}
}

func TestCachedOperationNeverCachesErrors(t *testing.T) {
	c := New[string, int](10, time.Minute)
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient failure")
		}
		return 7, nil
	}
	_, err := CachedOperation(context.Background(), c, "a", op)
	if err == nil {
		t.Fatal("expected the first call to fail")
	}
	v, err := CachedOperation(context.Background(), c, "a", op)
	if err != nil || v != 7 {
		t.Fatalf("expected the second call to succeed and not reuse a cached error, got %v %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("expected op to be invoked twice, got %d", calls)
	}
}

func TestStartCleanupSweeperRemovesExpiredEntries(t *testing.T) {
	m := &Manager{
		Embedding: New[EmbeddingCacheKey, []float32](10, time.Minute),
		Search:    New[SearchCacheKey, any](10, time.Minute),
		Chunk:     New[string, any](10, time.Minute),
	}
	now := time.Now()
	m.Chunk.now = func() time.Time { return now }
	m.Chunk.Put("x", "y")
	m.Chunk.now = func() time.Time { return now.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	stop := m.StartCleanupSweeper(ctx, 20*time.Millisecond)
	defer cancel()

	time.Sleep(80 * time.Millisecond)
	stop()

	if m.Chunk.Stats().TotalEntries != 0 {
		t.Fatalf("expected sweeper to remove expired entry, total=%d", m.Chunk.Stats().TotalEntries)
	}
}
