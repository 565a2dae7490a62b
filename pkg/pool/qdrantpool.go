package pool

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/metrics"
)

// QdrantConfig configures the fixed-size Qdrant connection pool.
type QdrantConfig struct {
	Addr    string
	MaxSize int
	Timeout time.Duration
	// Metrics, if set, receives pool hit/error/active observations under
	// the "qdrant" label. Nil is safe: observations are simply skipped.
	Metrics *metrics.Metrics
}

const qdrantPoolLabel = "qdrant"

// DefaultQdrantPoolSize is used when QdrantConfig.MaxSize is unset.
const DefaultQdrantPoolSize = 4

// QdrantPool is a fixed-size, round-robin pool of gRPC connections to
// Qdrant. Unlike the HTTP pool it does not block callers: every
// connection is created up front and handed out in rotation, since gRPC
// connections are long-lived and multiplexed.
type QdrantPool struct {
	cfg   QdrantConfig
	conns []*grpc.ClientConn
	met   *metrics.Metrics

	mu    sync.Mutex
	next  int
	stats PoolStats
}

// NewQdrantPool dials up to MaxSize gRPC connections to addr. A failure on
// the first dial fails construction; a failure on a later dial is recorded
// as an error and stops dialing, leaving a smaller but usable pool.
func NewQdrantPool(ctx context.Context, cfg QdrantConfig) (*QdrantPool, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultQdrantPoolSize
	}

	p := &QdrantPool{cfg: cfg, met: cfg.Metrics}
	for i := 0; i < cfg.MaxSize; i++ {
		conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			p.stats.Errors++
			if p.met != nil {
				p.met.PoolErrors.WithLabelValues(qdrantPoolLabel).Inc()
			}
			if i == 0 {
				return nil, errs.ExternalAPIf("failed to dial qdrant at %s: %v", cfg.Addr, err)
			}
			break
		}
		p.conns = append(p.conns, conn)
		p.stats.Created++
	}
	if len(p.conns) == 0 {
		return nil, errs.ExternalAPIf("failed to create any qdrant connections")
	}
	return p, nil
}

// Get returns the next connection in round-robin order.
func (p *QdrantPool) Get() (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.conns) == 0 {
		p.stats.Errors++
		if p.met != nil {
			p.met.PoolErrors.WithLabelValues(qdrantPoolLabel).Inc()
		}
		return nil, errs.ExternalAPIf("no qdrant connections available in pool")
	}
	conn := p.conns[p.next%len(p.conns)]
	p.next = (p.next + 1) % len(p.conns)
	p.stats.Hits++
	p.stats.Active++
	active := p.stats.Active
	if p.met != nil {
		p.met.PoolHits.WithLabelValues(qdrantPoolLabel).Inc()
		p.met.PoolActive.WithLabelValues(qdrantPoolLabel).Set(float64(active))
	}
	return conn, nil
}

// Release decrements the active-connection count. Unlike HTTPPool it does
// not gate acquisition, since gRPC connections are shared, not checked
// out exclusively; it exists only to keep PoolStats.Active meaningful.
func (p *QdrantPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stats.Active > 0 {
		p.stats.Active--
	}
	if p.met != nil {
		p.met.PoolActive.WithLabelValues(qdrantPoolLabel).Set(float64(p.stats.Active))
	}
}

// Size returns the number of live connections in the pool.
func (p *QdrantPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// MaxSize returns the pool's configured capacity.
func (p *QdrantPool) MaxSize() int { return p.cfg.MaxSize }

// Stats returns a snapshot of the pool's counters.
func (p *QdrantPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// IsHealthy reports whether the pool has at least one live connection and
// has not accumulated excessive errors.
func (p *QdrantPool) IsHealthy() bool {
	s := p.Stats()
	return p.Size() > 0 && s.Errors < 5
}

// Close closes every connection in the pool.
func (p *QdrantPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
