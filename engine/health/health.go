// Package health implements the health aggregator (C13): it probes the
// embedding provider and vector store, collects pool and cache statistics,
// and composes them into a single status snapshot.
package health

import (
	"context"
	"runtime"
	"time"

	"github.com/ragmw/midtier/pkg/cache"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/pool"
)

// Status is the aggregate health status.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// DefaultMemoryPressureThreshold is the heap-to-system ratio above which
// DefaultPressureCheck reports memory pressure.
const DefaultMemoryPressureThreshold = 0.90

// DefaultGoroutinePressureMultiplier bounds goroutine count as a multiple of
// GOMAXPROCS before DefaultPressureCheck reports cpu pressure. It is a
// coarse proxy: Go exposes no direct OS-level cpu utilization figure the
// way the runtime this was ported from does.
const DefaultGoroutinePressureMultiplier = 100

// Prober checks whether an external provider is reachable.
type Prober interface {
	HealthCheck(ctx context.Context) bool
}

// PoolStater exposes a connection pool's stats for the snapshot.
type PoolStater interface {
	Stats() pool.PoolStats
	IsHealthy() bool
}

// PressureCheck reports whether the process is under memory or cpu
// pressure.
type PressureCheck func() (memoryPressure, cpuPressure bool)

// DefaultPressureCheck derives pressure flags from runtime memory stats and
// goroutine count.
func DefaultPressureCheck() (memoryPressure, cpuPressure bool) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys > 0 {
		memoryPressure = float64(m.HeapAlloc)/float64(m.Sys) > DefaultMemoryPressureThreshold
	}
	cpuPressure = runtime.NumGoroutine() > runtime.GOMAXPROCS(0)*DefaultGoroutinePressureMultiplier
	return memoryPressure, cpuPressure
}

// CacheSnapshot mirrors the three named caches owned by the cache manager.
type CacheSnapshot struct {
	Embedding cache.Stats
	Search    cache.Stats
	Chunk     cache.Stats
}

// Snapshot is the composed health report.
type Snapshot struct {
	Status             Status
	CheckedAt          time.Time
	EmbeddingHealthy   bool
	VectorStoreHealthy bool
	MemoryPressure     bool
	CPUPressure        bool
	FailingSubsystem   string
	HTTPPool           pool.PoolStats
	QdrantPool         pool.PoolStats
	Cache              CacheSnapshot
	CollectionStatus   string
}

// Deps holds the health aggregator's collaborators. CollectionStatus is
// optional; an empty string is reported when it's nil.
type Deps struct {
	Embedding        Prober
	VectorStore      Prober
	HTTPPool         PoolStater
	QdrantPool       PoolStater
	CacheManager     *cache.Manager
	Pressure         PressureCheck
	CollectionStatus func(ctx context.Context) string
}

// Aggregator is the health aggregator (C13).
type Aggregator struct {
	deps Deps
}

// New constructs the health aggregator. A nil Pressure uses
// DefaultPressureCheck.
func New(deps Deps) *Aggregator {
	if deps.Pressure == nil {
		deps.Pressure = DefaultPressureCheck
	}
	return &Aggregator{deps: deps}
}

// Check probes every collaborator and composes a snapshot. Status is
// Healthy when both providers are reachable and neither pressure flag is
// set; Degraded when both are reachable but a pressure flag is set;
// Unhealthy otherwise, naming the first unreachable subsystem.
func (a *Aggregator) Check(ctx context.Context) Snapshot {
	snap := Snapshot{CheckedAt: time.Now()}

	// Probe both providers concurrently: neither check depends on the other,
	// and serializing them would double the snapshot's worst-case latency.
	probed := fn.FanOut(
		func() bool {
			return a.deps.Embedding != nil && a.deps.Embedding.HealthCheck(ctx)
		},
		func() bool {
			return a.deps.VectorStore != nil && a.deps.VectorStore.HealthCheck(ctx)
		},
	)
	snap.EmbeddingHealthy, snap.VectorStoreHealthy = probed[0], probed[1]
	snap.MemoryPressure, snap.CPUPressure = a.deps.Pressure()

	if a.deps.HTTPPool != nil {
		snap.HTTPPool = a.deps.HTTPPool.Stats()
	}
	if a.deps.QdrantPool != nil {
		snap.QdrantPool = a.deps.QdrantPool.Stats()
	}
	if a.deps.CacheManager != nil {
		snap.Cache = CacheSnapshot{
			Embedding: a.deps.CacheManager.Embedding.Stats(),
			Search:    a.deps.CacheManager.Search.Stats(),
			Chunk:     a.deps.CacheManager.Chunk.Stats(),
		}
	}
	if a.deps.CollectionStatus != nil {
		snap.CollectionStatus = a.deps.CollectionStatus(ctx)
	}

	switch {
	case !snap.EmbeddingHealthy:
		snap.Status = Unhealthy
		snap.FailingSubsystem = "azure_openai"
	case !snap.VectorStoreHealthy:
		snap.Status = Unhealthy
		snap.FailingSubsystem = "qdrant"
	case snap.MemoryPressure || snap.CPUPressure:
		snap.Status = Degraded
	default:
		snap.Status = Healthy
	}

	return snap
}
