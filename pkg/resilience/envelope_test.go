package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
)

func TestRetryWithBackoffSucceedsAfterRetryableFailures(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2, UseJitter: false}
	attempts := 0
	r := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) fn.Result[int] {
		attempts++
		if attempts < 3 {
			return fn.Err[int](errs.Networkf("down"))
		}
		return fn.Ok(42)
	})
	if r.IsErr() {
		t.Fatal("expected eventual success")
	}
	v, _ := r.Unwrap()
	if v != 42 || attempts != 3 {
		t.Fatalf("got v=%d attempts=%d", v, attempts)
	}
}

func TestRetryWithBackoffStopsOnNonRetryable(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2}
	attempts := 0
	r := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) fn.Result[int] {
		attempts++
		return fn.Err[int](errs.Validationf("bad input"))
	})
	if r.IsOk() {
		t.Fatal("expected failure")
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error should not be retried, got %d attempts", attempts)
	}
}

func TestRetryWithBackoffExhausts(t *testing.T) {
	cfg := Config{MaxRetries: 2, BaseDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2}
	attempts := 0
	r := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) fn.Result[int] {
		attempts++
		return fn.Err[int](errs.Networkf("down"))
	})
	if r.IsOk() {
		t.Fatal("expected exhaustion failure")
	}
	if attempts != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 attempts, got %d", attempts)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	r := WithTimeout(context.Background(), Config{OperationTimeoutS: 0}, func(ctx context.Context) fn.Result[int] {
		<-ctx.Done()
		return fn.Err[int](ctx.Err())
	})
	if r.IsOk() {
		t.Fatal("expected timeout failure")
	}
	_, err := r.Unwrap()
	if !errs.Retryable(err) {
		t.Fatalf("expected a retryable network-class timeout, got %v", err)
	}
}

func TestWithTimeoutSucceedsWithinBudget(t *testing.T) {
	cfg := Config{OperationTimeoutS: 5}
	r := WithTimeout(context.Background(), cfg, func(ctx context.Context) fn.Result[int] {
		return fn.Ok(7)
	})
	if r.IsErr() {
		t.Fatal("expected success")
	}
}

func TestWithFallbackReturnsPrimaryErrorOnDoubleFailure(t *testing.T) {
	cfg := Config{MaxRetries: 0, BaseDelayMs: 1, MaxDelayMs: 5}
	primaryErr := errs.ExternalAPIf("primary down")
	r := WithFallback(context.Background(), cfg,
		func(ctx context.Context) fn.Result[int] { return fn.Err[int](primaryErr) },
		func(ctx context.Context) fn.Result[int] { return fn.Err[int](errs.ExternalAPIf("fallback down")) },
	)
	if r.IsOk() {
		t.Fatal("expected failure")
	}
	_, err := r.Unwrap()
	if err != primaryErr {
		t.Fatalf("expected primary error to surface, got %v", err)
	}
}

func TestWithFallbackUsesFallbackOnPrimaryFailure(t *testing.T) {
	cfg := Config{MaxRetries: 0, BaseDelayMs: 1, MaxDelayMs: 5}
	r := WithFallback(context.Background(), cfg,
		func(ctx context.Context) fn.Result[int] { return fn.Err[int](errs.ExternalAPIf("primary down")) },
		func(ctx context.Context) fn.Result[int] { return fn.Ok(99) },
	)
	if r.IsErr() {
		t.Fatal("expected fallback success")
	}
	v, _ := r.Unwrap()
	if v != 99 {
		t.Fatalf("expected 99, got %d", v)
	}
}

func TestHealthCheckNeverPropagates(t *testing.T) {
	cfg := Config{MaxRetries: 1, BaseDelayMs: 1, MaxDelayMs: 5}
	ok := HealthCheck(context.Background(), cfg, func(ctx context.Context) fn.Result[struct{}] {
		return fn.Err[struct{}](errs.Networkf("unreachable"))
	})
	if ok {
		t.Fatal("expected unhealthy")
	}
}

func TestBatchExecutePreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := BatchExecute(context.Background(), items, 2, func(ctx context.Context, in int) fn.Result[int] {
		return fn.Ok(in * 10)
	})
	want := []int{10, 20, 30, 40, 50}
	for i, r := range results {
		v, err := r.Unwrap()
		if err != nil || v != want[i] {
			t.Fatalf("index %d: got %d err=%v, want %d", i, v, err, want[i])
		}
	}
}

func TestBatchExecuteNoDelayForSinglePartialGroup(t *testing.T) {
	items := []int{1, 2}
	start := time.Now()
	BatchExecute(context.Background(), items, 5, func(ctx context.Context, in int) fn.Result[int] {
		return fn.Ok(in)
	})
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Fatalf("a lone partial group should incur no inter-group delay, took %v", elapsed)
	}
}

func TestBatchExecuteDelaysAfterFullGroup(t *testing.T) {
	items := []int{1, 2, 3}
	start := time.Now()
	BatchExecute(context.Background(), items, 2, func(ctx context.Context, in int) fn.Result[int] {
		return fn.Ok(in)
	})
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected a ~100ms delay after the full first group, took %v", elapsed)
	}
}

func TestBatchExecuteDelaysAfterFullTrailingGroup(t *testing.T) {
	items := []int{1, 2}
	start := time.Now()
	BatchExecute(context.Background(), items, 2, func(ctx context.Context, in int) fn.Result[int] {
		return fn.Ok(in)
	})
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected a ~100ms delay even after a full-sized trailing group, took %v", elapsed)
	}
}
