package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/crop-advisory-service/internal/advisory"
	"github.com/kjstillabower/crop-advisory-service/internal/cache"
	"github.com/kjstillabower/crop-advisory-service/internal/circuitbreaker"
	"github.com/kjstillabower/crop-advisory-service/internal/client"
	"github.com/kjstillabower/crop-advisory-service/internal/config"
	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/degraded"
	httphandler "github.com/kjstillabower/crop-advisory-service/internal/http"
	"github.com/kjstillabower/crop-advisory-service/internal/lifecycle"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/publisher"
	"github.com/kjstillabower/crop-advisory-service/internal/rules"
	"github.com/kjstillabower/crop-advisory-service/internal/service"
)

const (
	version                = "dev"
	healthProbeTTL         = 30 * time.Second
	inFlightCheckInterval  = 50 * time.Millisecond
	startupWarmingDeadline = 30 * time.Second
	locationMinLength      = 1
	locationMaxLength      = 100
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewWeatherAPIClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient.SetDefaultLocation(cfg.DefaultLocation)

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.CountsAgainstCircuit,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("weather_api", observability.CircuitBreakerStateValue(int(to)))
				logger.Warn("circuit breaker transition", zap.String("component", "weather_api"), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cache.WithStaleRetention(staleRetention(cfg.StaleCacheTTL)))
		logger.Info("cache backend: in_memory")
	}
	weatherService := service.NewWeatherService(weatherClient, cacheSvc, cfg.CacheTTL, cfg.StaleCacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	geminiKey := ""
	if cfg.AdvisoryEnabled {
		geminiKey = cfg.GeminiAPIKey
	}
	gemini := advisory.NewGeminiClient(geminiKey, cfg.AdvisoryAPIURL, cfg.AdvisoryTimeout,
		advisory.WithBreakerStateChange(func(from, to string) {
			observability.RecordCircuitBreakerTransition("advisory_api", from, to)
			logger.Warn("circuit breaker transition", zap.String("component", "advisory_api"), zap.String("from", from), zap.String("to", to))
		}))
	advisor := advisory.NewAdvisor(gemini, cfg.AdvisoryModel, cfg.AdvisorySummaryModel, cfg.AdvisoryTimeout)
	logger.Info("advisory", zap.Bool("enabled", gemini.Enabled()), zap.String("model", cfg.AdvisoryModel))

	var findingPublisher publisher.FindingPublisher = publisher.NoopPublisher{}
	if cfg.KafkaEnabled {
		findingPublisher = publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaWriteTimeout, logger)
		logger.Info("finding publisher: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	evaluator := rules.NewEvaluator(crops.Default, nil)
	dashboard := service.NewDashboardService(weatherService, evaluator, advisor, cfg.AdvisoryTimeout,
		service.WithPublisher(findingPublisher),
		service.WithRegistry(crops.Default))

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	recoverer := degraded.NewRecoverer(weatherClient.ValidateAPIKey, cfg.DegradedRetryInitial, cfg.DegradedRetryMax,
		func() {
			logger.Error("weather provider did not recover; draining")
			lifecycle.SetShuttingDown(true)
		},
		degraded.WithLogger(logger))
	recoverer.Start(appCtx)

	healthConfig := &httphandler.HealthConfig{
		Thresholds:    healthThresholds(cfg),
		AdvisoryState: advisoryState(gemini),
		OnDegraded:    recoverer.NotifyDegraded,
		ProbeTTL:      healthProbeTTL,
		Version:       version,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(httphandler.Deps{
		Weather:           weatherService,
		Dashboard:         dashboard,
		Advisor:           advisor,
		Client:            weatherClient,
		DefaultLocation:   cfg.DefaultLocation,
		DefaultCrop:       cfg.DefaultCrop,
		LocationMinLength: locationMinLength,
		LocationMaxLength: locationMaxLength,
	}, healthConfig, logger)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	if cfg.WarmingEnabled && len(cfg.WarmingLocations) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(appCtx, startupWarmingDeadline)
		if err := warmer.Warm(warmCtx, cfg.WarmingLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmingInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.WarmingLocations, cfg.WarmingInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	appCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if left, err := httphandler.DrainInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", left))
	}

	if err := findingPublisher.Close(); err != nil {
		logger.Error("publisher close", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// healthThresholds converts percentage config into lifecycle thresholds.
// Overload is a share of what the rate limiter admits over the window.
func healthThresholds(cfg *config.Config) lifecycle.Thresholds {
	th := lifecycle.Thresholds{
		OverloadWindow:      cfg.OverloadWindow,
		DegradedWindow:      cfg.DegradedWindow,
		DegradedErrorRate:   float64(cfg.DegradedErrorPct) / 100,
		DegradedMinRequests: cfg.DegradedMinRequests,
	}
	if cfg.RateLimitRPS > 0 && cfg.OverloadThresholdPct > 0 {
		capacity := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds()
		th.OverloadThreshold = int(capacity * float64(cfg.OverloadThresholdPct) / 100)
	}
	return th
}

func advisoryState(g *advisory.GeminiClient) func() string {
	return func() string {
		if !g.Enabled() {
			return "disabled"
		}
		return g.BreakerState()
	}
}

// staleRetention keeps expired entries long enough for the stale window.
func staleRetention(staleTTL time.Duration) time.Duration {
	if staleTTL > cache.DefaultStaleRetention {
		return staleTTL
	}
	return cache.DefaultStaleRetention
}
