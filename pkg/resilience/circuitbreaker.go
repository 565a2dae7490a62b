// Package resilience implements the retry/timeout/fallback/circuit-breaker
// envelope wrapped around every outbound call to the embedding, chat, and
// vector-store providers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/metrics"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "half-open"
	}
}

// BreakerOpts configures the circuit breaker: FailureThreshold consecutive
// failures trip it; RecoveryTimeout is how long it stays open before the
// next call is admitted as a half-open probe.
type BreakerOpts struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

var DefaultBreakerOpts = BreakerOpts{
	FailureThreshold: 5,
	RecoveryTimeout:  30 * time.Second,
}

// Breaker is a Closed/Open/HalfOpen state machine. A half-open state admits
// every call, not just one probe, until the first success or failure
// resolves it: any half-open failure reopens the breaker immediately
// because the failure count carried over from Closed is already at or past
// threshold.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time

	met   *metrics.Metrics
	label string
}

func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultBreakerOpts.FailureThreshold
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = DefaultBreakerOpts.RecoveryTimeout
	}
	return &Breaker{opts: opts, now: time.Now}
}

// SetMetrics attaches a Metrics instance and a label (e.g. "azure_embedding",
// "azure_chat") this breaker's state gauge is reported under. Nil m disables
// observation.
func (b *Breaker) SetMetrics(m *metrics.Metrics, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.met = m
	b.label = label
	b.observeState()
}

// observeState publishes the current state to the attached gauge. Must
// hold mu.
func (b *Breaker) observeState() {
	if b.met != nil {
		b.met.BreakerState.WithLabelValues(b.label).Set(float64(b.state))
	}
}

// State returns the current state, resolving a pending Open->HalfOpen
// transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.RecoveryTimeout {
		b.state = StateHalfOpen
		b.observeState()
	}
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Call executes f through the breaker, rejecting without calling f when Open.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	if b.currentState() == StateOpen {
		b.mu.Unlock()
		return errs.ExternalAPIf("circuit breaker is open")
	}
	wasHalfOpen := b.state == StateHalfOpen
	b.mu.Unlock()

	err := f(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if wasHalfOpen || b.failures >= b.opts.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.observeState()
		}
		return err
	}
	if wasHalfOpen {
		b.state = StateClosed
		b.observeState()
	}
	b.failures = 0
	return nil
}

// CallResult is the fn.Result-returning form of Call.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	var zero T
	err := b.Call(ctx, func(ctx context.Context) error {
		r := f(ctx)
		if r.IsErr() {
			_, e := r.Unwrap()
			return e
		}
		v, _ := r.Unwrap()
		zero = v
		return nil
	})
	if err != nil {
		return fn.Err[T](err)
	}
	return fn.Ok(zero)
}

// BreakerStage wraps a Stage with circuit breaker protection.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
