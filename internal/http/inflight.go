package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// InFlightTracker counts requests currently being served so shutdown can drain them.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment adds one to the in-flight count.
func (t *InFlightTracker) Increment() { t.count.Add(1) }

// Decrement subtracts one from the in-flight count.
func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// WaitForZero blocks until the count reaches zero or ctx is done, polling every checkInterval.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// globalInFlightTracker is fed by MetricsMiddleware.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the number of requests MetricsMiddleware is serving.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// DrainInFlight records the in-flight count at shutdown, then waits for it to
// reach zero or ctx to end. It returns the count left when it gave up.
func DrainInFlight(ctx context.Context, checkInterval time.Duration) (int64, error) {
	observability.RecordShutdownInFlight(InFlightCount())
	if err := globalInFlightTracker.WaitForZero(ctx, checkInterval); err != nil {
		return InFlightCount(), err
	}
	return 0, nil
}
