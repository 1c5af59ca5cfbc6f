package types

import "time"

// ExplainableCard is the rubric-derived explanation of a decision.
// Cards are values: patching the decision id returns a copy.
type ExplainableCard struct {
	Version          string        `json:"version"`
	DecisionID       string        `json:"decision_id"`
	CandidateID      string        `json:"candidate_id"`
	JobTitle         string        `json:"job_title"`
	Locale           string        `json:"locale"`
	Reasons          []string      `json:"reasons"`
	Deltas           []RubricDelta `json:"deltas"`
	OverallScore     float64       `json:"overall_score"`
	PassingThreshold float64       `json:"passing_threshold"`
	PassingScore     float64       `json:"passing_score"`
	Strengths        []string      `json:"strengths"`
	ImprovementAreas []string      `json:"improvement_areas"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Disclaimer       string        `json:"disclaimer"`
}

// WithDecisionID returns a copy of the card bound to decisionID
func (c ExplainableCard) WithDecisionID(decisionID string) ExplainableCard {
	out := c
	out.DecisionID = decisionID
	out.Reasons = append([]string(nil), c.Reasons...)
	out.Deltas = append([]RubricDelta(nil), c.Deltas...)
	out.Strengths = append([]string(nil), c.Strengths...)
	out.ImprovementAreas = append([]string(nil), c.ImprovementAreas...)
	return out
}

// DecisionPayload holds the decision fields a receipt binds to its card
type DecisionPayload struct {
	Letter          string   `json:"letter"`
	Reasons         []string `json:"reasons"`
	TemplateVersion string   `json:"template_version"`
}

// ExplainableReceipt binds a card and decision payload with a hash and HMAC signature
type ExplainableReceipt struct {
	DecisionID      string    `json:"decision_id"`
	Hash            string    `json:"hash"`
	Signature       string    `json:"signature"`
	Algorithm       string    `json:"algorithm"`
	CardVersion     string    `json:"card_version"`
	TemplateVersion string    `json:"template_version"`
	CreatedAt       time.Time `json:"created_at"`
}
