package advisory

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// ErrParse is returned when LLM output holds no decodable JSON object.
var ErrParse = errors.New("advisory: unparseable response")

// jsonBlock matches from the first '{' to the last '}'.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

type rawAdvisory struct {
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
	Priority        string   `json:"priority"`
}

// ParseAdvisoryText extracts the JSON object embedded in raw LLM text. An
// unknown or missing priority becomes medium.
func ParseAdvisoryText(raw string) (models.AdvisoryPayload, error) {
	block := jsonBlock.FindString(raw)
	if block == "" {
		return models.AdvisoryPayload{}, ErrParse
	}
	var r rawAdvisory
	if err := json.Unmarshal([]byte(block), &r); err != nil {
		return models.AdvisoryPayload{}, errors.Join(ErrParse, err)
	}
	if r.Recommendations == nil && r.Alerts == nil {
		return models.AdvisoryPayload{}, ErrParse
	}
	p, ok := models.ParsePriority(strings.ToLower(strings.TrimSpace(r.Priority)))
	if !ok {
		p = models.PriorityMedium
	}
	return models.AdvisoryPayload{
		Recommendations: nonNil(r.Recommendations),
		Alerts:          nonNil(r.Alerts),
		Priority:        p,
	}, nil
}

// ParseQuickSummary decodes a {summary, tip} object from raw LLM text.
func ParseQuickSummary(raw string) (models.QuickSummary, error) {
	block := jsonBlock.FindString(raw)
	if block == "" {
		return models.QuickSummary{}, ErrParse
	}
	var s models.QuickSummary
	if err := json.Unmarshal([]byte(block), &s); err != nil {
		return models.QuickSummary{}, errors.Join(ErrParse, err)
	}
	s.Summary = strings.TrimSpace(s.Summary)
	s.Tip = strings.TrimSpace(s.Tip)
	s.Fallback = false
	if s.Summary == "" {
		return models.QuickSummary{}, ErrParse
	}
	return s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
