package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// TestEstimateIrrigation_HotDryWindy checks the compound multiplier on rice.
func TestEstimateIrrigation_HotDryWindy(t *testing.T) {
	got := EstimateIrrigation("rice", 38, 35, 0, 20)

	// 25 * 1.3 * 1.2 * 1.1 = 42.9
	assert.Equal(t, 43, got.RecommendedMM)
	assert.Equal(t, models.StressHigh, got.StressLevel)
	assert.Equal(t, 25.0, got.BaselineMM)
	assert.False(t, got.Waterlogging)
}

func TestEstimateIrrigation(t *testing.T) {
	tests := []struct {
		name       string
		crop       string
		temp, hum  float64
		precip     float64
		wind       float64
		wantMM     int
		wantStress models.StressLevel
	}{
		{"neutral rice", "rice", 25, 60, 0, 5, 25, models.StressNormal},
		{"cool humid wheat", "wheat", 15, 85, 0, 5, 10, models.StressLow},
		{"warm tomato", "tomato", 31, 60, 0, 5, 20, models.StressNormal},
		{"light rain onion", "onion", 25, 60, 2, 0, 6, models.StressLow},
		{"heavy rain sugarcane", "sugarcane", 25, 60, 6, 0, 9, models.StressLow},
		{"unknown crop uses rice", "quinoa", 25, 60, 0, 0, 25, models.StressNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateIrrigation(tt.crop, tt.temp, tt.hum, tt.precip, tt.wind)
			assert.Equal(t, tt.wantMM, got.RecommendedMM)
			assert.Equal(t, tt.wantStress, got.StressLevel)
		})
	}
}

// TestEstimateIrrigation_UnknownMatchesDefault verifies an unknown crop is
// indistinguishable from rice.
func TestEstimateIrrigation_UnknownMatchesDefault(t *testing.T) {
	assert.Equal(t, EstimateIrrigation("rice", 33, 45, 2, 18), EstimateIrrigation("banana", 33, 45, 2, 18))
}

// TestEstimateIrrigation_PrecipitationNeverIncreasesNeed checks monotonicity in precipitation.
func TestEstimateIrrigation_PrecipitationNeverIncreasesNeed(t *testing.T) {
	prev := EstimateIrrigation("cotton", 33, 45, 0, 18).RecommendedMM
	for _, p := range []float64{0.5, 1, 1.5, 3, 5, 5.5, 20, 100} {
		got := EstimateIrrigation("cotton", 33, 45, p, 18).RecommendedMM
		assert.LessOrEqual(t, got, prev, "precip %v", p)
		prev = got
	}
}

// TestEstimateIrrigation_StressMatchesRatio verifies stress level follows the recommended/base ratio.
func TestEstimateIrrigation_StressMatchesRatio(t *testing.T) {
	for _, temp := range []float64{10, 25, 32, 40} {
		for _, hum := range []float64{20, 60, 90} {
			for _, precip := range []float64{0, 3, 8} {
				got := EstimateIrrigation("rice", temp, hum, precip, 20)
				r := float64(got.RecommendedMM)
				switch got.StressLevel {
				case models.StressHigh:
					assert.Greater(t, r, got.BaselineMM*1.2)
				case models.StressLow:
					assert.Less(t, r, got.BaselineMM*0.8)
				default:
					assert.GreaterOrEqual(t, r, got.BaselineMM*0.8)
					assert.LessOrEqual(t, r, got.BaselineMM*1.2)
				}
			}
		}
	}
}

func TestPrecipitationFactor(t *testing.T) {
	assert.Equal(t, 1.0, precipitationFactor(1))
	assert.Equal(t, 0.7, precipitationFactor(1.01))
	assert.Equal(t, 0.7, precipitationFactor(5))
	assert.Equal(t, 0.3, precipitationFactor(5.01))
}

// TestEstimateIrrigation_Waterlogging verifies the flag tracks heavy recent rain.
func TestEstimateIrrigation_Waterlogging(t *testing.T) {
	assert.True(t, EstimateIrrigation("rice", 25, 60, 6, 0).Waterlogging)
	assert.False(t, EstimateIrrigation("rice", 25, 60, 5, 0).Waterlogging)
}
