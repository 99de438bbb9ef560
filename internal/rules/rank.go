package rules

import (
	"sort"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// Rank returns a copy of findings ordered high -> low priority. Findings of
// equal priority keep their table order.
func Rank(findings []models.Finding) []models.Finding {
	out := make([]models.Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// Merge appends the incoming findings whose IDs are not already present.
// Existing entries, including their Dismissed flag, are left untouched.
func Merge(existing, incoming []models.Finding) []models.Finding {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f.ID] = struct{}{}
	}
	out := append([]models.Finding(nil), existing...)
	for _, f := range incoming {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}

// MaxPriority returns the highest priority among findings, or low when empty.
func MaxPriority(findings []models.Finding) models.Priority {
	best := models.PriorityLow
	for _, f := range findings {
		if f.Priority.Rank() > best.Rank() {
			best = f.Priority
		}
	}
	return best
}
