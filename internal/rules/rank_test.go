package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

func finding(id string, p models.Priority) models.Finding {
	return models.Finding{ID: id, Priority: p}
}

func TestRank_StableByPriority(t *testing.T) {
	in := []models.Finding{
		finding("a", models.PriorityLow),
		finding("b", models.PriorityHigh),
		finding("c", models.PriorityMedium),
		finding("d", models.PriorityHigh),
	}

	got := Rank(in)

	var ids []string
	for _, f := range got {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids)
	assert.Equal(t, "a", in[0].ID, "input must not be reordered")
}

// TestMerge_KeepsExisting verifies merge is by ID and preserves dismissal state.
func TestMerge_KeepsExisting(t *testing.T) {
	existing := []models.Finding{finding("temp-1", models.PriorityHigh)}
	existing[0].Dismissed = true
	incoming := []models.Finding{finding("temp-1", models.PriorityHigh), finding("wind-1", models.PriorityMedium)}

	got := Merge(existing, incoming)

	assert.Len(t, got, 2)
	assert.True(t, got[0].Dismissed)
	assert.Equal(t, "wind-1", got[1].ID)
	assert.Len(t, Merge(got, incoming), 2)
}

func TestMaxPriority(t *testing.T) {
	assert.Equal(t, models.PriorityLow, MaxPriority(nil))
	assert.Equal(t, models.PriorityHigh, MaxPriority([]models.Finding{
		finding("a", models.PriorityMedium), finding("b", models.PriorityHigh),
	}))
}
