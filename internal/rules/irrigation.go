package rules

import (
	"math"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// EstimateIrrigation uses the default crop registry; see Evaluator.EstimateIrrigation.
func EstimateIrrigation(cropKey string, tempC, humidity, precipMM, windKph float64) models.IrrigationEstimate {
	return NewEvaluator(nil, nil).EstimateIrrigation(cropKey, tempC, humidity, precipMM, windKph)
}

// EstimateIrrigation adjusts the crop's baseline daily water need for current
// conditions. Factors multiply the running total in a fixed order:
// temperature, humidity, wind, recent precipitation. Unknown crops use the
// fallback profile.
func (e *Evaluator) EstimateIrrigation(cropKey string, tempC, humidity, precipMM, windKph float64) models.IrrigationEstimate {
	profile, _ := e.registry.Lookup(cropKey)
	base := profile.DailyNeedMM

	need := base
	need *= temperatureFactor(tempC)
	need *= humidityFactor(humidity)
	need *= windFactor(windKph)
	need *= precipitationFactor(precipMM)
	recommended := int(math.Round(need))

	return models.IrrigationEstimate{
		Crop:          profile.Key,
		RecommendedMM: recommended,
		BaselineMM:    base,
		StressLevel:   stressLevel(float64(recommended), base),
		CriticalStage: profile.CriticalStage,
		Method:        profile.IrrigationMethod,
		Waterlogging:  precipMM > 5,
	}
}

func temperatureFactor(tempC float64) float64 {
	switch {
	case tempC > 35:
		return 1.3
	case tempC > 30:
		return 1.1
	case tempC < 20:
		return 0.8
	default:
		return 1
	}
}

func humidityFactor(humidity float64) float64 {
	switch {
	case humidity < 40:
		return 1.2
	case humidity > 80:
		return 0.8
	default:
		return 1
	}
}

func windFactor(windKph float64) float64 {
	if windKph > 15 {
		return 1.1
	}
	return 1
}

func precipitationFactor(precipMM float64) float64 {
	switch {
	case precipMM > 5:
		return 0.3
	case precipMM > 1:
		return 0.7
	default:
		return 1
	}
}

func stressLevel(recommended, base float64) models.StressLevel {
	switch {
	case recommended > base*1.2:
		return models.StressHigh
	case recommended < base*0.8:
		return models.StressLow
	default:
		return models.StressNormal
	}
}
