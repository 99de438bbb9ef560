package rules

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(nil, clockwork.NewFakeClockAt(fixedNow))
}

func snap(temp, humidity, wind, precip, uv float64, condition string) models.WeatherSnapshot {
	return models.WeatherSnapshot{
		TempC:     temp,
		Humidity:  humidity,
		WindKph:   wind,
		PrecipMM:  precip,
		UV:        uv,
		Condition: condition,
	}
}

// TestEvaluate_HotDay verifies a hot, otherwise calm day yields exactly one
// high-priority weather finding.
func TestEvaluate_HotDay(t *testing.T) {
	e := newTestEvaluator()

	got := e.Evaluate(snap(36, 50, 10, 0, 3, "Sunny"), "rice")

	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "High Temperature Alert", f.Title)
	assert.Equal(t, models.CategoryWeather, f.Category)
	assert.Equal(t, models.PriorityHigh, f.Priority)
	assert.Equal(t, "Temperature is 36°C. Consider providing shade for rice crops and increase irrigation frequency.", f.Message)
	assert.Equal(t, "temp-1748770200000", f.ID)
	assert.Equal(t, fixedNow, f.Timestamp)
}

// TestEvaluate_DryHeat verifies low humidity plus heat yields the irrigation finding only.
func TestEvaluate_DryHeat(t *testing.T) {
	e := newTestEvaluator()

	got := e.Evaluate(snap(32, 25, 5, 0, 4, "Clear"), "rice")

	require.Len(t, got, 1)
	assert.Equal(t, "Irrigation Required", got[0].Title)
	assert.Equal(t, models.CategoryIrrigation, got[0].Category)
	assert.Equal(t, models.PriorityHigh, got[0].Priority)
}

// TestEvaluate_NoCollapse verifies every firing rule is emitted in table order,
// including several in the same category.
func TestEvaluate_NoCollapse(t *testing.T) {
	e := newTestEvaluator()

	got := e.Evaluate(snap(36, 90, 30, 12, 9, "Heavy rain"), "wheat")

	var keys []string
	for _, f := range got {
		keys = append(keys, f.Rule)
	}
	assert.Equal(t, []string{"temp", "rain", "humidity", "wind", "uv"}, keys)

	weather := 0
	for _, f := range got {
		if f.Category == models.CategoryWeather {
			weather++
		}
	}
	assert.Equal(t, 3, weather)
}

// TestEvaluate_Thresholds checks the boundary of each rule: thresholds are strict.
func TestEvaluate_Thresholds(t *testing.T) {
	tests := []struct {
		name string
		in   models.WeatherSnapshot
		want []string
	}{
		{"all at threshold", snap(35, 85, 25, 10, 8, "Sunny"), nil},
		{"just above temp", snap(35.1, 50, 0, 0, 0, ""), []string{"temp"}},
		{"just above rain", snap(20, 50, 0, 10.1, 0, ""), []string{"rain"}},
		{"just above humidity", snap(20, 85.5, 0, 0, 0, ""), []string{"humidity"}},
		{"just above wind", snap(20, 50, 25.2, 0, 0, ""), []string{"wind"}},
		{"just above uv", snap(20, 50, 0, 0, 8.5, ""), []string{"uv"}},
		{"irrigation needs both", snap(30, 20, 0, 0, 0, ""), nil},
		{"irrigation humidity at 30", snap(31, 30, 0, 0, 0, ""), nil},
	}
	e := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []string
			for _, f := range e.Evaluate(tt.in, "rice") {
				keys = append(keys, f.Rule)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

// TestEvaluate_HumidityAboveThresholdAlwaysFires sweeps humidity from just
// past the threshold to saturation with everything else calm.
func TestEvaluate_HumidityAboveThresholdAlwaysFires(t *testing.T) {
	e := newTestEvaluator()
	for h := 85.5; h <= 100; h += 0.5 {
		var rules []string
		for _, f := range e.Evaluate(snap(20, h, 0, 0, 0, "Cloudy"), "rice") {
			rules = append(rules, f.Rule)
		}
		assert.Contains(t, rules, "humidity", "humidity %.1f", h)
	}
}

// TestEvaluateCrop covers the crop temperature table.
func TestEvaluateCrop(t *testing.T) {
	tests := []struct {
		name      string
		crop      string
		temp      float64
		wantRule  string
		wantTitle string
	}{
		{"rice heat stress", "rice", 36, "crop-temp-high", "Rice Heat Stress"},
		{"wheat too cold", "wheat", 5, "crop-temp-low", "Wheat Temperature Alert"},
		{"tomato in range", "tomato", 24, "", ""},
		{"unknown crop skips", "quinoa", 50, "", ""},
		{"corn has no range", "corn", 50, "", ""},
	}
	e := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EvaluateCrop(snap(tt.temp, 50, 0, 0, 0, ""), tt.crop)
			if tt.wantRule == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantRule, got[0].Rule)
			assert.Equal(t, tt.wantTitle, got[0].Title)
		})
	}
}

// TestEvaluateAll verifies weather findings come before crop findings.
func TestEvaluateAll(t *testing.T) {
	e := newTestEvaluator()

	got := e.EvaluateAll(snap(36, 50, 10, 0, 3, "Sunny"), "rice")

	require.Len(t, got, 2)
	assert.Equal(t, "temp", got[0].Rule)
	assert.Equal(t, "crop-temp-high", got[1].Rule)
}

// TestEvaluate_Deterministic verifies identical inputs at the same instant give identical output.
func TestEvaluate_Deterministic(t *testing.T) {
	e := newTestEvaluator()
	in := snap(37.4, 88, 30, 11, 9, "Rain")

	assert.Equal(t, e.EvaluateAll(in, "tomato"), e.EvaluateAll(in, "tomato"))
}

// TestEvaluate_IDsAdvanceWithClock verifies IDs embed the evaluation instant.
func TestEvaluate_IDsAdvanceWithClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(fixedNow)
	e := NewEvaluator(nil, clock)
	in := snap(36, 50, 0, 0, 0, "")

	first := e.Evaluate(in, "rice")
	clock.Advance(time.Second)
	second := e.Evaluate(in, "rice")

	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Len(t, Merge(first, second), 2)
}

// TestEvaluate_EmptyCropUsesDefault verifies an empty crop key renders as the default crop.
func TestEvaluate_EmptyCropUsesDefault(t *testing.T) {
	e := newTestEvaluator()

	got := e.Evaluate(snap(36, 50, 0, 0, 0, ""), "  ")

	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "for rice crops")
}
