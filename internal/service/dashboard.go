package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/crop-advisory-service/internal/advisory"
	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
	"github.com/kjstillabower/crop-advisory-service/internal/publisher"
	"github.com/kjstillabower/crop-advisory-service/internal/rules"
	"github.com/kjstillabower/crop-advisory-service/internal/validation"
)

// WeatherGetter is satisfied by WeatherService.
type WeatherGetter interface {
	GetWeather(ctx context.Context, location string) (models.WeatherSnapshot, error)
}

// AdviceSource is satisfied by advisory.Advisor. Advise never fails; it
// returns a fallback payload instead.
type AdviceSource interface {
	Advise(ctx context.Context, req advisory.AdvisoryRequest) models.AdvisoryPayload
}

// DashboardService combines a snapshot, the rule engine, and the LLM advisory
// into one prioritized view.
type DashboardService struct {
	weather         WeatherGetter
	evaluator       *rules.Evaluator
	registry        *crops.Registry
	advisor         AdviceSource
	publisher       publisher.FindingPublisher
	advisoryTimeout time.Duration
	clock           clockwork.Clock
}

// DashboardOption configures a DashboardService.
type DashboardOption func(*DashboardService)

// WithPublisher sets where generated findings are published.
func WithPublisher(p publisher.FindingPublisher) DashboardOption {
	return func(d *DashboardService) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithRegistry overrides crops.Default.
func WithRegistry(r *crops.Registry) DashboardOption {
	return func(d *DashboardService) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithDashboardClock sets the clock used for GeneratedAt.
func WithDashboardClock(c clockwork.Clock) DashboardOption {
	return func(d *DashboardService) {
		if c != nil {
			d.clock = c
		}
	}
}

// NewDashboardService wires the orchestrator. advisoryTimeout bounds the
// advisory call separately from the request (0 = request deadline only).
func NewDashboardService(weather WeatherGetter, evaluator *rules.Evaluator, advisor AdviceSource, advisoryTimeout time.Duration, opts ...DashboardOption) *DashboardService {
	d := &DashboardService{
		weather:         weather,
		evaluator:       evaluator,
		registry:        crops.Default,
		advisor:         advisor,
		publisher:       publisher.NoopPublisher{},
		advisoryTimeout: advisoryTimeout,
		clock:           clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.evaluator == nil {
		d.evaluator = rules.NewEvaluator(d.registry, nil)
	}
	return d
}

// Analysis is the rule-engine output for one snapshot and crop.
type Analysis struct {
	Findings   []models.Finding
	Irrigation models.IrrigationEstimate
	Pests      models.PestAssessment
}

// Analyze runs every rule table, the irrigation estimator and the pest
// classifier over snapshot. Findings are ranked. It records metrics for what
// it produced.
func (d *DashboardService) Analyze(ctx context.Context, snapshot models.WeatherSnapshot, cropKey string) Analysis {
	if _, known := d.registry.Lookup(cropKey); !known {
		observability.CropFallbackTotal.Inc()
		observability.LoggerOrNop(ctx).Debug("unknown crop, using fallback profile",
			zap.String("crop", cropKey),
			zap.String("fallback", crops.DefaultKey))
	}

	a := Analysis{
		Findings:   rules.Rank(d.evaluator.EvaluateAll(snapshot, cropKey)),
		Irrigation: d.evaluator.EstimateIrrigation(cropKey, snapshot.TempC, snapshot.Humidity, snapshot.PrecipMM, snapshot.WindKph),
		Pests:      d.evaluator.ClassifyPests(cropKey, snapshot.Condition, snapshot.Humidity, snapshot.TempC),
	}
	for _, f := range a.Findings {
		observability.RecordFinding(string(f.Category), string(f.Priority))
	}
	observability.IrrigationStressTotal.WithLabelValues(string(a.Irrigation.StressLevel)).Inc()
	observability.PestRiskTotal.WithLabelValues(string(a.Pests.RiskLevel)).Inc()
	return a
}

// Build fetches the snapshot for location and assembles the dashboard. It
// fails only when no valid snapshot is available; advisory and publishing
// problems degrade to fallbacks.
func (d *DashboardService) Build(ctx context.Context, location, cropKey, season string) (models.Dashboard, error) {
	if cropKey == "" {
		cropKey = crops.DefaultKey
	}
	logger := observability.LoggerOrNop(ctx)

	snapshot, err := d.weather.GetWeather(ctx, location)
	if err != nil {
		return models.Dashboard{}, err
	}
	if err := validation.ValidateSnapshot(snapshot); err != nil {
		return models.Dashboard{}, fmt.Errorf("snapshot for %s: %w", location, err)
	}

	analysis := d.Analyze(ctx, snapshot, cropKey)
	displayLocation := snapshot.Location.Name
	if displayLocation == "" {
		displayLocation = location
	}

	var advice models.AdvisoryPayload
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		advice = d.advise(gctx, advisory.AdvisoryRequest{
			Weather:  snapshot,
			Crop:     cropKey,
			Location: displayLocation,
			Season:   season,
		})
		return nil
	})
	g.Go(func() error {
		env := publisher.Envelope{Crop: cropKey, Location: displayLocation}
		if err := d.publisher.Publish(gctx, env, analysis.Findings); err != nil {
			logger.Warn("publish findings failed", zap.Error(err), zap.Int("count", len(analysis.Findings)))
		}
		return nil
	})
	_ = g.Wait()

	priority := rules.MaxPriority(analysis.Findings)
	if advice.Priority.Rank() > priority.Rank() {
		priority = advice.Priority
	}

	return models.Dashboard{
		Location:    displayLocation,
		Crop:        cropKey,
		Weather:     snapshot,
		Findings:    analysis.Findings,
		Irrigation:  analysis.Irrigation,
		Pests:       analysis.Pests,
		Advisory:    advice,
		Priority:    priority,
		GeneratedAt: d.clock.Now(),
	}, nil
}

func (d *DashboardService) advise(ctx context.Context, req advisory.AdvisoryRequest) models.AdvisoryPayload {
	if d.advisor == nil {
		return advisory.CallFailureAdvisory()
	}
	if d.advisoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.advisoryTimeout)
		defer cancel()
	}
	return d.advisor.Advise(ctx, req)
}
