package resilience

import (
	"context"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"golang.org/x/time/rate"
)

// LimiterOpts configures the rate limiter.
type LimiterOpts struct {
	// Rate is the sustained number of permits per second.
	Rate float64
	// Burst is the maximum number of permits held at once.
	Burst int
}

// Limiter rate-limits outbound calls. It wraps x/time/rate.Limiter rather
// than reimplementing token bucket refill math.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)}
}

// Allow checks if a request is allowed right now, without blocking.
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}

// Wait blocks until a permit is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// Call executes f if a permit is available now, otherwise rejects.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return errs.RateLimitf("rate limited")
	}
	return f(ctx)
}

// CallWait waits for a permit then executes f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}

// LimiterStage wraps an fn.Stage with rate limiting (non-blocking, rejects when limited).
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if !l.Allow() {
			return fn.Err[Out](errs.RateLimitf("rate limited"))
		}
		return stage(ctx, in)
	}
}

// LimiterStageWait wraps an fn.Stage with rate limiting (blocking, waits for a permit).
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
