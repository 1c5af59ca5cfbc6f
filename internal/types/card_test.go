package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExplainableCard_WithDecisionID(t *testing.T) {
	card := ExplainableCard{
		Version:          "1.0",
		DecisionID:       "pending",
		Reasons:          []string{"A: Scored 40% (threshold: 70%)"},
		Deltas:           []RubricDelta{{Criterion: "A", Delta: -1.5, IsDeficient: true}},
		Strengths:        []string{"B: met expectations"},
		ImprovementAreas: []string{"A: 1.5 points below the passing threshold"},
	}

	patched := card.WithDecisionID("dec-42")

	assert.Equal(t, "dec-42", patched.DecisionID)
	assert.Equal(t, "pending", card.DecisionID, "original card must not change")

	patched.Reasons[0] = "mutated"
	assert.Equal(t, "A: Scored 40% (threshold: 70%)", card.Reasons[0], "slices must be copied")
}

func TestBiasCategories_Taxonomy(t *testing.T) {
	assert.Len(t, AllBiasCategories, 11)

	seen := make(map[BiasCategory]bool)
	for _, c := range AllBiasCategories {
		assert.False(t, seen[c], "duplicate category %s", c)
		seen[c] = true
	}
}
