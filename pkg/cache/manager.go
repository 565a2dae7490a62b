package cache

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/ragmw/midtier/pkg/metrics"
)

// Default capacities and TTLs for the three named caches.
const (
	EmbeddingCapacity = 1000
	EmbeddingTTL      = 3600 * time.Second
	SearchCapacity    = 500
	SearchTTL         = 1800 * time.Second
	ChunkCapacity     = 200
	ChunkTTL          = 7200 * time.Second

	DefaultCleanupInterval = 600 * time.Second
)

// EmbeddingCacheKey identifies a cached embedding by the hash of its source
// text and the model used to produce it.
type EmbeddingCacheKey struct {
	TextHash uint64
	Model    string
}

// NewEmbeddingCacheKey hashes text for use as a cache key. The hash is
// stable only within a single process run.
func NewEmbeddingCacheKey(text, model string) EmbeddingCacheKey {
	return EmbeddingCacheKey{TextHash: hashString(text), Model: model}
}

// SearchCacheKey identifies a cached search result set. The raw float bit
// pattern of the query vector and a threshold quantized to 1e-3 mean two
// queries collide only when their float patterns match exactly at that
// quantization — a known, accepted limitation rather than a true semantic
// cache key.
type SearchCacheKey struct {
	VectorHash uint64
	Limit      int
	Threshold  uint32
}

// NewSearchCacheKey builds a search cache key from a query vector, limit,
// and optional score threshold.
func NewSearchCacheKey(vector []float32, limit int, threshold *float64) SearchCacheKey {
	h := fnv.New64a()
	buf := make([]byte, 4)
	for _, f := range vector {
		bits := math.Float32bits(f)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf)
	}
	var q uint32
	if threshold != nil {
		q = uint32(*threshold * 1000)
	}
	return SearchCacheKey{VectorHash: h.Sum64(), Limit: limit, Threshold: q}
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// Manager owns the three named caches and a background cleanup sweeper.
type Manager struct {
	Embedding *Cache[EmbeddingCacheKey, []float32]
	Search    *Cache[SearchCacheKey, any]
	Chunk     *Cache[string, any]

	stop chan struct{}
}

// NewManager builds a Manager with the spec's default capacities and TTLs.
// A nil met leaves every cache unobserved.
func NewManager(met *metrics.Metrics) *Manager {
	m := &Manager{
		Embedding: New[EmbeddingCacheKey, []float32](EmbeddingCapacity, EmbeddingTTL),
		Search:    New[SearchCacheKey, any](SearchCapacity, SearchTTL),
		Chunk:     New[string, any](ChunkCapacity, ChunkTTL),
	}
	m.Embedding.SetMetrics(met, "embedding")
	m.Search.SetMetrics(met, "search")
	m.Chunk.SetMetrics(met, "chunk")
	return m
}

// StartCleanupSweeper runs CleanupExpired on every cache at interval until
// the returned stop function is called or ctx is cancelled.
func (m *Manager) StartCleanupSweeper(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				m.Embedding.CleanupExpired()
				m.Search.CleanupExpired()
				m.Chunk.CleanupExpired()
			}
		}
	}()
	return func() { close(stop) }
}

// CachedOperation executes op on a cache miss, storing successful results
// under the default TTL. It never stores error outcomes.
func CachedOperation[K comparable, V any](ctx context.Context, c *Cache[K, V], key K, op func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := op(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Put(key, v)
	return v, nil
}

// CachedOperationWithTTL is CachedOperation with a caller-supplied TTL for
// the stored entry.
func CachedOperationWithTTL[K comparable, V any](ctx context.Context, c *Cache[K, V], key K, ttl time.Duration, op func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := op(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.PutWithTTL(key, v, ttl)
	return v, nil
}
