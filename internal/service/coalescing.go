package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// requestCoalescer collapses concurrent upstream fetches for the same key
// into one call. Waiters give up after timeout or when their own context ends;
// the shared call keeps running for the others.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

// newRequestCoalescer creates a new requestCoalescer with the specified timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn for key unless a call is already in flight, in which case it
// waits for that call's result. shared reports whether the result was handed
// to more than one caller. fn receives a context that is detached from the
// caller's cancellation but bounded by the coalescer timeout.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.WeatherSnapshot, error)) (data models.WeatherSnapshot, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(callCtx)
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherSnapshot{}, res.Shared, res.Err
		}
		return res.Val.(models.WeatherSnapshot), res.Shared, nil
	case <-waitCtx.Done():
		return models.WeatherSnapshot{}, false, waitCtx.Err()
	}
}
