package models

import "time"

// AdvisoryPayload is the structured advice returned by the LLM collaborator
// or, when it is unavailable, by the local fallback.
type AdvisoryPayload struct {
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
	Priority        Priority `json:"priority"`
	Fallback        bool     `json:"fallback,omitempty"`
}

// QuickSummary is the short summary/tip pair shown next to the weather card.
type QuickSummary struct {
	Summary  string `json:"summary"`
	Tip      string `json:"tip"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Dashboard is the combined, priority-ranked payload for one location and crop.
type Dashboard struct {
	Location    string             `json:"location"`
	Crop        string             `json:"crop"`
	Weather     WeatherSnapshot    `json:"weather"`
	Findings    []Finding          `json:"findings"`
	Irrigation  IrrigationEstimate `json:"irrigation"`
	Pests       PestAssessment     `json:"pests"`
	Advisory    AdvisoryPayload    `json:"advisory"`
	Priority    Priority           `json:"priority"`
	GeneratedAt time.Time          `json:"generated_at"`
}
