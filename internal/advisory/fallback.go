package advisory

import "github.com/kjstillabower/crop-advisory-service/internal/models"

// excerptLen is how much unparseable text is kept as a recommendation.
const excerptLen = 200

// CallFailureAdvisory is served when the LLM call fails or is disabled.
func CallFailureAdvisory() models.AdvisoryPayload {
	return models.AdvisoryPayload{
		Recommendations: []string{"Monitor weather conditions closely", "Check crop health regularly"},
		Alerts:          []string{"Unable to get current AI recommendations"},
		Priority:        models.PriorityMedium,
		Fallback:        true,
	}
}

// ParseFailureAdvisory keeps an excerpt of text the LLM returned without a
// usable JSON object.
func ParseFailureAdvisory(text string) models.AdvisoryPayload {
	r := []rune(text)
	if len(r) > excerptLen {
		r = r[:excerptLen]
	}
	return models.AdvisoryPayload{
		Recommendations: []string{string(r) + "..."},
		Alerts:          []string{"Check weather conditions regularly"},
		Priority:        models.PriorityMedium,
		Fallback:        true,
	}
}

// SummaryFallback is served when a quick summary cannot be produced.
func SummaryFallback() models.QuickSummary {
	return models.QuickSummary{
		Summary:  "Could not generate AI summary. The service may be temporarily unavailable.",
		Tip:      "Please rely on the standard weather and crop data for now.",
		Fallback: true,
	}
}
