package types

// RubricCriterion is one weighted evaluation criterion.
// Weights need not sum to 1; consumers normalize.
type RubricCriterion struct {
	Name   string  `json:"name" validate:"required"`
	Weight float64 `json:"weight" validate:"gte=0"`
}

// CandidateScore is a candidate's 1-5 score for one criterion
type CandidateScore struct {
	Criterion string  `json:"criterion" validate:"required"`
	Score     float64 `json:"score" validate:"gte=1,lte=5"`
	Evidence  string  `json:"evidence,omitempty"`
}

// RubricDelta is derived from a criterion, its score and the passing threshold.
// It is always recomputed and never stored as the source of truth.
type RubricDelta struct {
	Criterion   string  `json:"criterion"`
	Weight      float64 `json:"weight"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Delta       float64 `json:"delta"`
	IsDeficient bool    `json:"is_deficient"`
	Missing     bool    `json:"missing,omitempty"`
}
