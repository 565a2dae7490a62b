package metrics

import (
	"context"
	"time"

	"github.com/ragmw/midtier/pkg/fn"
)

// TimeStage wraps stage so every call observes its wall-clock duration in
// StageLatency under label. A nil Metrics runs stage unmodified.
func TimeStage[In, Out any](m *Metrics, label string, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	if m == nil {
		return stage
	}
	return func(ctx context.Context, in In) fn.Result[Out] {
		start := time.Now()
		r := stage(ctx, in)
		m.StageLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
		return r
	}
}
