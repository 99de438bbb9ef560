// Package degraded drives recovery once the service reports degraded health:
// it re-probes the weather provider on a Fibonacci schedule and clears the
// traffic window when a probe succeeds.
package degraded

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/traffic"
)

// probeTimeout bounds a single recovery probe.
const probeTimeout = 10 * time.Second

// ValidateFunc probes the upstream dependency. Returns nil if recovered.
type ValidateFunc func(ctx context.Context) error

// Recoverer runs at most one recovery sequence at a time.
type Recoverer struct {
	validate    ValidateFunc
	delays      []time.Duration
	onRecovered func()
	onExhausted func()
	clock       clockwork.Clock
	logger      *zap.Logger

	notify chan struct{}
	mu     sync.Mutex
	active bool
}

// Option configures a Recoverer.
type Option func(*Recoverer)

// WithClock sets the clock used for backoff waits. For tests.
func WithClock(c clockwork.Clock) Option {
	return func(r *Recoverer) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recoverer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnRecovered replaces the default success action (traffic.Reset).
func WithOnRecovered(fn func()) Option {
	return func(r *Recoverer) { r.onRecovered = fn }
}

// NewRecoverer returns a Recoverer that waits initial, then follows the
// Fibonacci sequence up to max between probes (1m, 2m, 3m, 5m, 8m, 13m for
// 1m..20m). onExhausted runs if the final probe still fails.
func NewRecoverer(validate ValidateFunc, initial, max time.Duration, onExhausted func(), opts ...Option) *Recoverer {
	r := &Recoverer{
		validate:    validate,
		delays:      fibDelays(initial, max),
		onRecovered: traffic.Reset,
		onExhausted: onExhausted,
		clock:       clockwork.NewRealClock(),
		logger:      zap.NewNop(),
		notify:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NotifyDegraded asks for a recovery run. Non-blocking; a run already in
// progress absorbs the request.
func (r *Recoverer) NotifyDegraded() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Active reports whether a recovery sequence is running.
func (r *Recoverer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start listens for NotifyDegraded until ctx is done.
func (r *Recoverer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.notify:
				r.mu.Lock()
				if r.active {
					r.mu.Unlock()
					continue
				}
				r.active = true
				r.mu.Unlock()
				go func() {
					defer func() {
						r.mu.Lock()
						r.active = false
						r.mu.Unlock()
					}()
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Run executes one recovery sequence and reports whether a probe succeeded.
func (r *Recoverer) Run(ctx context.Context) bool {
	if len(r.delays) == 0 || r.validate == nil {
		return false
	}
	for i, d := range r.delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.clock.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := r.validate(attemptCtx)
		cancel()
		if err == nil {
			r.logger.Info("recovery probe succeeded", zap.Int("attempt", i+1))
			if r.onRecovered != nil {
				r.onRecovered()
			}
			return true
		}
		r.logger.Warn("recovery probe failed", zap.Int("attempt", i+1), zap.Duration("waited", d), zap.Error(err))
	}
	r.logger.Error("recovery exhausted", zap.Int("attempts", len(r.delays)))
	if r.onExhausted != nil {
		r.onExhausted()
	}
	return false
}

// Delays returns the probe schedule.
func (r *Recoverer) Delays() []time.Duration {
	return append([]time.Duration(nil), r.delays...)
}

func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := 1, 2; ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
