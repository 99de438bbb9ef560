package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// maxWarmConcurrency bounds concurrent upstream fetches during a warm pass.
const maxWarmConcurrency = 4

// WeatherFetcher is implemented by the service layer to fetch weather for a location.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, location string) (models.WeatherSnapshot, error)
}

// CacheWarmer warms the cache by prefetching weather for a list of locations.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches each location through the fetcher, which populates the cache.
// One location failing does not stop the others; all failures are joined.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	errs := make([]error, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWarmConcurrency)
	for i, loc := range locations {
		g.Go(func() error {
			if _, err := w.fetcher.GetWeather(gctx, loc); err != nil {
				observability.CacheWarmingTotal.WithLabelValues("error").Inc()
				errs[i] = fmt.Errorf("warm %s: %w", loc, err)
				return nil
			}
			observability.CacheWarmingTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	duration := time.Since(start)
	observability.CacheWarmingDurationSeconds.Observe(duration.Seconds())
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Bool("errors", err != nil),
		zap.Duration("duration", duration))
	return err
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
