// Package explain builds rubric-based explainable cards for decisions and
// the signed receipts that make them tamper-evident.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/decision-letters/internal/signing"
	"github.com/jonathan/decision-letters/internal/types"
)

const (
	// CardVersion is stamped on every generated card
	CardVersion = "1.0"
	// DefaultPassingThreshold is the per-criterion passing score on the 1-5 scale
	DefaultPassingThreshold = 3.5
	// MinScore and MaxScore bound the scoring scale
	MinScore = 1.0
	MaxScore = 5.0
	// MaxReasons caps the reasons rendered on a card
	MaxReasons = 3
	// PendingDecisionID marks a card generated before its decision record exists
	PendingDecisionID = "pending"

	strongDelta = 1.0

	genericReason = "Overall: other candidates more closely matched the requirements for this role"
)

// CardInput is everything needed to build a card
type CardInput struct {
	DecisionID       string
	CandidateID      string
	JobTitle         string
	Rubric           []types.RubricCriterion
	Scores           []types.CandidateScore
	PassingThreshold float64
	Locale           string
}

// Generator builds cards and receipts
type Generator struct {
	signer *signing.Signer
	now    func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithClock overrides the card timestamp source
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator that signs receipts with signer
func NewGenerator(signer *signing.Signer, opts ...Option) (*Generator, error) {
	if signer == nil {
		return nil, &Error{Message: "signer is required"}
	}
	g := &Generator{signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GenerateCard computes deltas, overall score, reasons, strengths and
// improvement areas for the candidate. A criterion with no score counts as
// 0 and is always deficient.
func (g *Generator) GenerateCard(in CardInput) (types.ExplainableCard, error) {
	if len(in.Rubric) == 0 {
		return types.ExplainableCard{}, &Error{Message: "rubric must contain at least one criterion"}
	}
	threshold := in.PassingThreshold
	if threshold == 0 {
		threshold = DefaultPassingThreshold
	}
	if threshold < 0 || threshold > MaxScore {
		return types.ExplainableCard{}, &Error{Message: fmt.Sprintf("passing threshold %.2f is outside 0-%.0f", threshold, MaxScore)}
	}
	decisionID := in.DecisionID
	if decisionID == "" {
		decisionID = PendingDecisionID
	}

	deltas, err := ComputeDeltas(in.Rubric, in.Scores, threshold)
	if err != nil {
		return types.ExplainableCard{}, err
	}

	card := types.ExplainableCard{
		Version:          CardVersion,
		DecisionID:       decisionID,
		CandidateID:      in.CandidateID,
		JobTitle:         in.JobTitle,
		Locale:           CanonicalLocale(in.Locale),
		Reasons:          Reasons(deltas),
		Deltas:           deltas,
		OverallScore:     OverallScore(deltas),
		PassingThreshold: threshold,
		PassingScore:     percent(threshold),
		Strengths:        []string{},
		ImprovementAreas: []string{},
		GeneratedAt:      g.now().UTC().Truncate(time.Millisecond),
		Disclaimer:       Disclaimer(in.Locale),
	}

	for _, d := range deltas {
		switch {
		case d.Delta >= strongDelta:
			card.Strengths = append(card.Strengths, fmt.Sprintf("%s: strong performance", d.Criterion))
		case d.Delta >= 0:
			card.Strengths = append(card.Strengths, fmt.Sprintf("%s: met expectations", d.Criterion))
		default:
			card.ImprovementAreas = append(card.ImprovementAreas,
				fmt.Sprintf("%s: %s points below the passing threshold", d.Criterion, formatPoints(-d.Delta)))
		}
	}

	return card, nil
}

// ComputeDeltas pairs every criterion with its score and sorts the deltas
// ascending, worst first. Ties keep rubric order.
func ComputeDeltas(rubric []types.RubricCriterion, scores []types.CandidateScore, threshold float64) ([]types.RubricDelta, error) {
	byName := make(map[string]float64, len(scores))
	for _, s := range scores {
		key := normalizeName(s.Criterion)
		if key == "" {
			continue
		}
		if s.Score < MinScore || s.Score > MaxScore || math.IsNaN(s.Score) {
			return nil, &Error{Message: fmt.Sprintf("score %.2f for %q is outside %.0f-%.0f", s.Score, s.Criterion, MinScore, MaxScore)}
		}
		byName[key] = s.Score
	}

	deltas := make([]types.RubricDelta, 0, len(rubric))
	seen := make(map[string]bool, len(rubric))
	for _, c := range rubric {
		key := normalizeName(c.Name)
		if key == "" {
			return nil, &Error{Message: "rubric criterion name is required"}
		}
		if seen[key] {
			return nil, &Error{Message: fmt.Sprintf("duplicate rubric criterion %q", c.Name)}
		}
		seen[key] = true
		if c.Weight < 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return nil, &Error{Message: fmt.Sprintf("weight for %q must be a non-negative number", c.Name)}
		}

		score, ok := byName[key]
		delta := score - threshold
		deltas = append(deltas, types.RubricDelta{
			Criterion:   c.Name,
			Weight:      c.Weight,
			Score:       score,
			Threshold:   threshold,
			Delta:       round(delta, 2),
			IsDeficient: !ok || delta < 0,
			Missing:     !ok,
		})
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Delta < deltas[j].Delta
	})
	return deltas, nil
}

// OverallScore is the weight-normalized average of score/5*100. When every
// weight is zero the criteria count equally.
func OverallScore(deltas []types.RubricDelta) float64 {
	if len(deltas) == 0 {
		return 0
	}
	var totalWeight float64
	for _, d := range deltas {
		totalWeight += d.Weight
	}
	var sum float64
	for _, d := range deltas {
		weight := d.Weight
		if totalWeight == 0 {
			weight = 1
		}
		sum += percent(d.Score) * weight
	}
	if totalWeight == 0 {
		totalWeight = float64(len(deltas))
	}
	return round(sum/totalWeight, 2)
}

// Reasons renders up to MaxReasons deficient criteria, worst first, or one
// generic reason when nothing is deficient. deltas must already be sorted.
func Reasons(deltas []types.RubricDelta) []string {
	reasons := make([]string, 0, MaxReasons)
	for _, d := range deltas {
		if !d.IsDeficient {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("%s: Scored %s%% (threshold: %s%%)",
			d.Criterion, formatPercent(percent(d.Score)), formatPercent(percent(d.Threshold))))
		if len(reasons) == MaxReasons {
			break
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, genericReason)
	}
	return reasons
}

func percent(score float64) float64 {
	return score / MaxScore * 100
}

func formatPercent(pct float64) string {
	return formatPoints(round(pct, 0))
}

func formatPoints(v float64) string {
	v = round(v, 2)
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
