// Package pool implements the bounded connection pools (C3) sitting in
// front of the embedding/chat provider and the vector store: a
// semaphore-bounded HTTP client pool and a fixed round-robin Qdrant client
// pool, both exposing the same PoolStats/health-check shape.
package pool

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/metrics"
)

// HTTPConfig configures the HTTP client pool.
type HTTPConfig struct {
	MaxSize        int
	Timeout        time.Duration
	ConnectTimeout time.Duration
	PoolTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxIdlePerHost int
	// Metrics, if set, receives pool hit/miss/error/active observations
	// under the "http" label. Nil is safe: observations are simply skipped.
	Metrics *metrics.Metrics
}

// DefaultHTTPConfig mirrors the provider pool's defaults.
var DefaultHTTPConfig = HTTPConfig{
	MaxSize:        10,
	Timeout:        30 * time.Second,
	ConnectTimeout: 10 * time.Second,
	PoolTimeout:    5 * time.Second,
	IdleTimeout:    90 * time.Second,
	MaxIdlePerHost: 5,
}

// PoolStats are the observable counters shared by both pool flavors.
type PoolStats struct {
	Created int64
	Active  int64
	Hits    int64
	Misses  int64
	Errors  int64
}

// HTTPPool is a semaphore-bounded pool of *http.Client, each client tuned
// with the same timeout/idle-connection settings. Unlike a managed
// resource pool, clients are never destroyed: http.Client already pools
// its own underlying TCP connections, so the pool's job is purely to cap
// concurrent callers and report the resulting pressure.
type HTTPPool struct {
	cfg    HTTPConfig
	sem    chan struct{}
	client *http.Client
	met    *metrics.Metrics

	mu    sync.Mutex
	stats PoolStats
}

const httpPoolLabel = "http"

// NewHTTPPool builds a bounded HTTP client pool.
func NewHTTPPool(cfg HTTPConfig) *HTTPPool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultHTTPConfig.MaxSize
	}
	if cfg.MaxIdlePerHost <= 0 {
		cfg.MaxIdlePerHost = DefaultHTTPConfig.MaxIdlePerHost
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultHTTPConfig.IdleTimeout
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.IdleTimeout,
		MaxIdleConnsPerHost: cfg.MaxIdlePerHost,
	}
	return &HTTPPool{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxSize),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		met: cfg.Metrics,
	}
}

// PooledHTTPClient is a client checked out from an HTTPPool. Release must
// be called exactly once to return the slot.
type PooledHTTPClient struct {
	client  *http.Client
	release func()
}

// Client returns the underlying *http.Client.
func (p *PooledHTTPClient) Client() *http.Client { return p.client }

// Release returns the slot to the pool.
func (p *PooledHTTPClient) Release() {
	if p.release != nil {
		p.release()
	}
}

// Get acquires a client slot, blocking until one is free, ctx is done, or
// the configured pool timeout elapses.
func (p *HTTPPool) Get(ctx context.Context) (*PooledHTTPClient, error) {
	timeout := p.cfg.PoolTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPConfig.PoolTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		p.mu.Lock()
		p.stats.Hits++
		p.stats.Active++
		p.stats.Created++
		active := p.stats.Active
		p.mu.Unlock()
		if p.met != nil {
			p.met.PoolHits.WithLabelValues(httpPoolLabel).Inc()
			p.met.PoolActive.WithLabelValues(httpPoolLabel).Set(float64(active))
		}

		var once sync.Once
		return &PooledHTTPClient{
			client: p.client,
			release: func() {
				once.Do(func() {
					p.mu.Lock()
					p.stats.Active--
					active := p.stats.Active
					p.mu.Unlock()
					if p.met != nil {
						p.met.PoolActive.WithLabelValues(httpPoolLabel).Set(float64(active))
					}
					<-p.sem
				})
			},
		}, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		if p.met != nil {
			p.met.PoolErrors.WithLabelValues(httpPoolLabel).Inc()
		}
		return nil, errs.ExternalAPIf("connection pool wait cancelled: %v", ctx.Err())
	case <-timer.C:
		p.mu.Lock()
		p.stats.Misses++
		p.mu.Unlock()
		if p.met != nil {
			p.met.PoolMisses.WithLabelValues(httpPoolLabel).Inc()
		}
		return nil, errs.ExternalAPIf("connection pool timeout")
	}
}

// WarmUp acquires and immediately releases n clients, exercising the pool
// path without leaving slots checked out.
func (p *HTTPPool) WarmUp(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		c, err := p.Get(ctx)
		if err != nil {
			return err
		}
		c.Release()
	}
	return nil
}

// Stats returns a snapshot of the pool's counters.
func (p *HTTPPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Available returns how many slots are currently free.
func (p *HTTPPool) Available() int {
	return cap(p.sem) - len(p.sem)
}

// MaxSize returns the pool's configured capacity.
func (p *HTTPPool) MaxSize() int { return cap(p.sem) }

// IsHealthy reports whether the pool has spare capacity and has not
// accumulated excessive errors.
func (p *HTTPPool) IsHealthy() bool {
	s := p.Stats()
	return p.Available() > 0 && s.Errors < 10
}

// pooledTransport routes every round trip through the pool's scoped
// acquisition: a request borrows a slot before it is sent and returns it
// once the response (or error) comes back, so concurrent callers sharing
// this client are still bounded by MaxSize.
type pooledTransport struct {
	pool *HTTPPool
	next http.RoundTripper
}

func (t *pooledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c, err := t.pool.Get(req.Context())
	if err != nil {
		return nil, err
	}
	defer c.Release()
	return t.next.RoundTrip(req)
}

// HTTPClient returns an *http.Client whose transport acquires and releases
// a pool slot around every request, so callers that hold on to the client
// (rather than calling Get/Release themselves) still go through the
// bounded pool on every outbound call.
func (p *HTTPPool) HTTPClient() *http.Client {
	next := p.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   p.client.Timeout,
		Transport: &pooledTransport{pool: p, next: next},
	}
}
