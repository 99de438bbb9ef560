package rules

import (
	"strings"

	"github.com/kjstillabower/crop-advisory-service/internal/crops"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// Pest classification thresholds.
const (
	PestRiskHumidityPct = 80.0
	PestRiskTempC       = 30.0
)

// ClassifyPests uses crops.Default; see Evaluator.ClassifyPests.
func ClassifyPests(cropKey, condition string, humidity, tempC float64) models.PestAssessment {
	return NewEvaluator(nil, nil).ClassifyPests(cropKey, condition, humidity, tempC)
}

// ClassifyPests collects the pests favoured by current conditions, without
// duplicates and in list order, and derives the risk level from how many
// were matched. Crop is the resolved profile key, as in EstimateIrrigation.
func (e *Evaluator) ClassifyPests(cropKey, condition string, humidity, tempC float64) models.PestAssessment {
	lists := e.registry.PestLists(cropKey)
	profile, _ := e.registry.Lookup(cropKey)
	crop := profile.Key

	var matched []string
	seen := make(map[string]struct{})
	add := func(pests []string) {
		for _, p := range pests {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			matched = append(matched, p)
		}
	}

	if humidity > PestRiskHumidityPct {
		add(lists[crops.HighHumidity])
	}
	if tempC > PestRiskTempC {
		add(lists[crops.HighTemp])
	}
	if isRainy(condition) {
		add(lists[crops.Rainy])
	}

	level := RiskLevelFor(len(matched))
	msg := "Current weather conditions are favorable. Low pest risk for your " + crop + " crops."
	if len(matched) > 0 {
		msg = "Current weather conditions favor pest activity. Monitor your " + crop + " crops closely."
	}
	if matched == nil {
		matched = []string{}
	}
	return models.PestAssessment{
		Crop:         crop,
		MatchedPests: matched,
		RiskLevel:    level,
		Message:      msg,
	}
}

// RiskLevelFor maps a count of distinct matched pests to a risk level.
func RiskLevelFor(n int) models.RiskLevel {
	switch {
	case n > 2:
		return models.RiskHigh
	case n > 0:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func isRainy(condition string) bool {
	c := strings.ToLower(condition)
	return strings.Contains(c, "rain") || strings.Contains(c, "shower")
}
