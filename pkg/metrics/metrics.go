// Package metrics exposes the process's Prometheus metrics: connection pool
// and cache counters, circuit breaker state, retry attempts, and pipeline
// latency histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the middle tier emits.
type Metrics struct {
	reg *prometheus.Registry

	PoolHits    *prometheus.CounterVec
	PoolMisses  *prometheus.CounterVec
	PoolErrors  *prometheus.CounterVec
	PoolActive  *prometheus.GaugeVec

	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	RetryAttempts *prometheus.CounterVec

	StageLatency *prometheus.HistogramVec
}

// New builds a Metrics instance and registers every collector against a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		PoolHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_pool_hits_total",
			Help: "Connection pool slot acquisitions that succeeded.",
		}, []string{"pool"}),
		PoolMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_pool_misses_total",
			Help: "Connection pool slot acquisitions that timed out waiting for a free slot.",
		}, []string{"pool"}),
		PoolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_pool_errors_total",
			Help: "Connection pool acquisition or health-check errors.",
		}, []string{"pool"}),
		PoolActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "midtier_pool_active",
			Help: "Connection pool slots currently borrowed.",
		}, []string{"pool"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_cache_hits_total",
			Help: "Cache lookups that found a live entry.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_cache_misses_total",
			Help: "Cache lookups that found no live entry.",
		}, []string{"cache"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_cache_evictions_total",
			Help: "Cache entries evicted to respect capacity.",
		}, []string{"cache"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "midtier_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"breaker"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "midtier_retry_attempts_total",
			Help: "Retry attempts made by the resilience envelope.",
		}, []string{"operation"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "midtier_stage_latency_seconds",
			Help:    "Latency of ingestion pipeline stages (chunk, embed).",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.PoolHits, m.PoolMisses, m.PoolErrors, m.PoolActive,
		m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.BreakerState, m.RetryAttempts, m.StageLatency,
	)
	return m
}

// Handler returns the HTTP handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
