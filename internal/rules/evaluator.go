// Package rules is the alerting core: fixed threshold tables evaluated
// against a weather snapshot and crop, an irrigation estimator, and a pest
// risk classifier. Everything here is pure. Nothing performs I/O or keeps
// state between calls, so an Evaluator is safe for concurrent use.
package rules

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// Evaluator applies the rule tables. The clock only supplies the timestamp
// stamped on findings and their IDs.
type Evaluator struct {
	registry *crops.Registry
	clock    clockwork.Clock
}

// NewEvaluator returns an Evaluator. A nil registry uses crops.Default and a
// nil clock uses the real clock.
func NewEvaluator(registry *crops.Registry, clock clockwork.Clock) *Evaluator {
	if registry == nil {
		registry = crops.Default
	}
	if clock == nil {
		clock = defaultClock
	}
	return &Evaluator{registry: registry, clock: clock}
}

// Evaluate runs the general weather table.
func (e *Evaluator) Evaluate(snapshot models.WeatherSnapshot, cropKey string) []models.Finding {
	return e.run(WeatherRules, snapshot, cropKey)
}

// EvaluateCrop runs the crop temperature table. Crops without an optimal
// range produce nothing.
func (e *Evaluator) EvaluateCrop(snapshot models.WeatherSnapshot, cropKey string) []models.Finding {
	return e.run(CropRules, snapshot, cropKey)
}

// EvaluateAll runs the weather table followed by the crop table.
func (e *Evaluator) EvaluateAll(snapshot models.WeatherSnapshot, cropKey string) []models.Finding {
	out := e.Evaluate(snapshot, cropKey)
	return append(out, e.EvaluateCrop(snapshot, cropKey)...)
}

func (e *Evaluator) run(table []Rule, snapshot models.WeatherSnapshot, cropKey string) []models.Finding {
	in := e.input(snapshot, cropKey)
	now := e.clock.Now()
	out := make([]models.Finding, 0, len(table))
	for _, r := range table {
		if !r.Applies(in) {
			continue
		}
		out = append(out, models.Finding{
			ID:        FindingID(r.Key, now.UnixMilli()),
			Rule:      r.Key,
			Category:  r.Category,
			Priority:  r.Priority,
			Title:     r.Title(in),
			Message:   r.Message(in),
			Timestamp: now,
		})
	}
	return out
}

func (e *Evaluator) input(snapshot models.WeatherSnapshot, cropKey string) Input {
	key := crops.NormalizeKey(cropKey)
	if key == "" {
		key = crops.DefaultKey
	}
	in := Input{Snapshot: snapshot, Crop: key}
	if r, ok := e.registry.TempRange(key); ok {
		in.TempRange = &r
	}
	return in
}

// FindingID is the stable identifier for a rule firing at a given instant.
func FindingID(ruleKey string, unixMilli int64) string {
	return fmt.Sprintf("%s-%d", ruleKey, unixMilli)
}
