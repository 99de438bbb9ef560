package models

import "time"

// Category groups findings for display and filtering.
type Category string

const (
	CategoryWeather    Category = "weather"
	CategoryPest       Category = "pest"
	CategoryIrrigation Category = "irrigation"
	CategoryGeneral    Category = "general"
)

// Priority orders findings; it also doubles as the advisory priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a sortable weight for p. Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority normalizes s to a Priority, reporting false for anything unrecognized.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), true
	}
	return "", false
}

// RiskLevel is the qualitative pest risk derived from matched pests.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Finding is one categorized, prioritized output of the rule engine.
// Dismissed belongs to whoever displays the finding; the engine never sets it.
type Finding struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	Category  Category  `json:"type"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Dismissed bool      `json:"dismissed,omitempty"`
}

// StressLevel describes how far the irrigation recommendation moved from baseline.
type StressLevel string

const (
	StressLow    StressLevel = "low"
	StressNormal StressLevel = "normal"
	StressHigh   StressLevel = "high"
)

// IrrigationEstimate is the adjusted daily water requirement for a crop.
type IrrigationEstimate struct {
	Crop          string      `json:"crop"`
	RecommendedMM int         `json:"recommended_mm"`
	BaselineMM    float64     `json:"baseline_mm"`
	StressLevel   StressLevel `json:"stress_level"`
	CriticalStage string      `json:"critical_stage"`
	Method        string      `json:"method"`
	Waterlogging  bool        `json:"waterlogging_risk,omitempty"`
}

// PestAssessment lists the pests favoured by current conditions.
type PestAssessment struct {
	Crop         string    `json:"crop"`
	MatchedPests []string  `json:"matched_pests"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Message      string    `json:"message"`
}
