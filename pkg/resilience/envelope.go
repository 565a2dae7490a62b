package resilience

import (
	"context"
	"time"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/metrics"
)

// Config mirrors the envelope defaults every outbound call is wrapped with.
type Config struct {
	MaxRetries        int
	BaseDelayMs       int
	MaxDelayMs        int
	BackoffMultiplier float64
	OperationTimeoutS int
	UseJitter         bool

	// Metrics and MetricsLabel, if set, count every attempt RetryWithBackoff
	// makes (including the first) under RetryAttempts. A zero Metrics
	// disables observation.
	Metrics      *metrics.Metrics
	MetricsLabel string
}

var DefaultConfig = Config{
	MaxRetries:        3,
	BaseDelayMs:       1000,
	MaxDelayMs:        30000,
	BackoffMultiplier: 2.0,
	OperationTimeoutS: 60,
	UseJitter:         true,
}

// RetryWithBackoff runs op, retrying non-terminal failures up to
// cfg.MaxRetries additional attempts, with exponential backoff jittered by a
// uniform factor in [0.75, 1.25] when cfg.UseJitter. A failure classified as
// non-retryable (per the errs taxonomy) returns immediately without
// consuming a retry. Delegates the actual attempt loop to fn.Retry, which
// carries this same backoff shape.
func RetryWithBackoff[T any](ctx context.Context, cfg Config, op func(context.Context) fn.Result[T]) fn.Result[T] {
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond
	opts := fn.RetryOpts{
		MaxAttempts: cfg.MaxRetries + 1,
		InitialWait: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		MaxWait:     maxDelay,
		Multiplier:  cfg.BackoffMultiplier,
		Jitter:      cfg.UseJitter,
		ShouldRetry: errs.Retryable,
	}
	if cfg.Metrics != nil {
		wrapped := op
		op = func(ctx context.Context) fn.Result[T] {
			cfg.Metrics.RetryAttempts.WithLabelValues(cfg.MetricsLabel).Inc()
			return wrapped(ctx)
		}
	}
	return fn.Retry(ctx, opts, op)
}

// WithTimeout runs op, returning a Network-class timeout error if it does
// not complete within cfg.OperationTimeoutS.
func WithTimeout[T any](ctx context.Context, cfg Config, op func(context.Context) fn.Result[T]) fn.Result[T] {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.OperationTimeoutS)*time.Second)
	defer cancel()

	done := make(chan fn.Result[T], 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case r := <-done:
		if r.IsErr() && ctx.Err() == context.DeadlineExceeded {
			return fn.Err[T](errs.Networkf("operation timed out after %ds", cfg.OperationTimeoutS))
		}
		return r
	case <-ctx.Done():
		return fn.Err[T](errs.Networkf("operation timed out after %ds", cfg.OperationTimeoutS))
	}
}

// WithFallback runs primary through RetryWithBackoff; on failure runs
// fallback once. On double failure the primary's error is returned.
func WithFallback[T any](ctx context.Context, cfg Config, primary, fallback func(context.Context) fn.Result[T]) fn.Result[T] {
	r := RetryWithBackoff(ctx, cfg, primary)
	if r.IsOk() {
		return r
	}
	_, primaryErr := r.Unwrap()

	fb := fallback(ctx)
	if fb.IsOk() {
		return fb
	}
	return fn.Err[T](primaryErr)
}

// HealthCheck runs probe through RetryWithBackoff and never propagates its
// error: it reports healthy=false on failure instead.
func HealthCheck(ctx context.Context, cfg Config, probe func(context.Context) fn.Result[struct{}]) bool {
	r := RetryWithBackoff(ctx, cfg, probe)
	return r.IsOk()
}

// BatchExecute partitions items into groups of batchSize, runs each group
// concurrently, and joins results in input order. A 100ms delay follows
// every full-sized group (batchSize items), including the last, so a
// short trailing partial group is the only one that pays no delay.
func BatchExecute[In, Out any](ctx context.Context, items []In, batchSize int, op func(context.Context, In) fn.Result[Out]) []fn.Result[Out] {
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]fn.Result[Out], len(items))

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		group := items[start:end]

		type indexed struct {
			idx int
			res fn.Result[Out]
		}
		out := make(chan indexed, len(group))
		for i, item := range group {
			go func(i int, item In) {
				out <- indexed{idx: i, res: op(ctx, item)}
			}(i, item)
		}
		for range group {
			r := <-out
			results[start+r.idx] = r.res
		}

		if len(group) == batchSize {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return results
}
