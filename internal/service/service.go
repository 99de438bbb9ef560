// Package service holds the orchestration layer: cache-aside weather retrieval
// and the dashboard that combines the rule engine with the LLM advisory.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/cache"
	"github.com/kjstillabower/crop-advisory-service/internal/client"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// WeatherService fetches snapshots cache-aside with upstream fallback. When
// upstream fails it can serve a stale cached snapshot marked Stale.
type WeatherService struct {
	client        client.WeatherClient
	cache         cache.Cache
	ttl           time.Duration
	staleCacheTTL time.Duration // 0 disables stale fallback
	misses        *missTracker
	coalescer     *requestCoalescer // nil if disabled
	now           func() time.Time
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
// ttl is the cache expiry for fresh snapshots; staleCacheTTL is the maximum age
// served when upstream fails (0 = disabled). Coalescing is disabled when
// coalesceTimeout is 0.
func NewWeatherService(client client.WeatherClient, cache cache.Cache, ttl time.Duration, staleCacheTTL time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		client:        client,
		cache:         cache,
		ttl:           ttl,
		staleCacheTTL: staleCacheTTL,
		misses:        newMissTracker(),
		coalescer:     coalescer,
		now:           time.Now,
	}
}

// GetWeather returns the snapshot for location, from cache when fresh.
func (s *WeatherService) GetWeather(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	key := normalizeLocation(location)
	start := time.Now()
	logger := observability.LoggerOrNop(ctx)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("location", key), zap.Error(err))
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		logger.Debug("weather served", zap.String("location", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	_, done := s.misses.Begin(key)
	defer done()
	logger.Debug("cache miss, fetching upstream", zap.String("location", key))

	data, upstreamErr := s.fetch(ctx, key)
	if upstreamErr != nil {
		if stale, ok := s.staleFallback(ctx, key, upstreamErr); ok {
			return stale, nil
		}
		return models.WeatherSnapshot{}, fmt.Errorf("fetch weather for %s: %w", key, upstreamErr)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("location", key), zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	logger.Debug("weather served", zap.String("location", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

func (s *WeatherService) fetch(ctx context.Context, key string) (models.WeatherSnapshot, error) {
	if s.coalescer == nil {
		return s.client.GetCurrentWeather(ctx, key)
	}
	waitStart := time.Now()
	data, shared, err := s.coalescer.GetOrDo(ctx, key, func(callCtx context.Context) (models.WeatherSnapshot, error) {
		return s.client.GetCurrentWeather(callCtx, key)
	})
	if err == nil {
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(observability.MetricLocationLabel(key)).Inc()
		}
		observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}
	return data, err
}

// staleFallback serves an expired snapshot when upstream is unavailable.
// Location-not-found and bad-key errors are not masked.
func (s *WeatherService) staleFallback(ctx context.Context, key string, cause error) (models.WeatherSnapshot, bool) {
	if s.staleCacheTTL <= 0 || errors.Is(cause, client.ErrLocationNotFound) || errors.Is(cause, client.ErrInvalidAPIKey) {
		return models.WeatherSnapshot{}, false
	}
	stale, ok, err := s.cache.GetStale(ctx, key, s.staleCacheTTL)
	if err != nil || !ok {
		return models.WeatherSnapshot{}, false
	}
	age := s.now().Sub(stale.ObservedAt)
	observability.StaleCacheServesTotal.WithLabelValues(observability.MetricLocationLabel(key)).Inc()
	observability.StaleCacheAgeSeconds.Observe(age.Seconds())
	observability.LoggerOrNop(ctx).Info("serving stale cache",
		zap.String("location", key),
		zap.Duration("age", age),
		zap.Error(cause))
	stale.Stale = true
	return stale, true
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// normalizeLocation trims and lower-cases a location for cache keys and upstream calls.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
