package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	// Multiplier is the exponential backoff base; a zero value defaults
	// to 2 (each wait doubles the previous one, capped at MaxWait).
	Multiplier float64
	Jitter     bool
	// ShouldRetry reports whether a failed attempt should be retried at
	// all; nil retries every failure. pkg/resilience's envelope passes
	// errs.Retryable here so a permanent failure (validation, auth) stops
	// immediately instead of burning the rest of the attempt budget.
	ShouldRetry func(error) bool
}

// DefaultRetry provides sensible retry defaults, jittered by a uniform
// factor in [0.75, 1.25] — the same backoff shape pkg/resilience's C2
// envelope uses for outbound provider calls.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Multiplier:  2,
	Jitter:      true,
}

// Retry retries f up to MaxAttempts times with exponential backoff,
// stopping early if ShouldRetry rejects the latest error.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	multiplier := opts.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	var result Result[T]
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if opts.ShouldRetry != nil {
			_, err := result.Unwrap()
			if !opts.ShouldRetry(err) {
				return result
			}
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		// Check context before sleeping
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		sleepDur := wait
		if sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}
		if opts.Jitter {
			sleepDur = time.Duration(float64(sleepDur) * (0.75 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleepDur):
		}

		wait = time.Duration(float64(wait) * multiplier)
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
