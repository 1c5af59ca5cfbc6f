// Package bias detects protected-characteristic language in free text using a
// table of pattern rules with per-jurisdiction overlays.
package bias

import (
	"sort"
	"strings"

	"github.com/jonathan/decision-letters/internal/types"
)

// Policy holds the scoring constants. The defaults are product policy, not derived values.
type Policy struct {
	Deductions map[types.Severity]int
	PassScore  int
}

// DefaultPolicy returns the standard deductions (25/15/5/2) and a pass score of 80
func DefaultPolicy() Policy {
	return Policy{
		Deductions: map[types.Severity]int{
			types.SeverityCritical: 25,
			types.SeverityHigh:     15,
			types.SeverityMedium:   5,
			types.SeverityLow:      2,
		},
		PassScore: 80,
	}
}

// Result is the outcome of a single Detect call
type Result struct {
	Passed   bool                `json:"passed"`
	Warnings []types.BiasWarning `json:"warnings"`
	Score    int                 `json:"score"`
}

// HasSeverity reports whether any warning has the given severity
func (r Result) HasSeverity(severity types.Severity) bool {
	for _, w := range r.Warnings {
		if w.Severity == severity {
			return true
		}
	}
	return false
}

// Detector runs the rule table. It is immutable after construction and safe
// for concurrent use.
type Detector struct {
	base     []Rule
	overlays map[Jurisdiction][]Rule
	policy   Policy
}

// Option configures a Detector
type Option func(*Detector)

// WithPolicy overrides the scoring policy
func WithPolicy(p Policy) Option {
	return func(d *Detector) {
		d.policy = p
	}
}

// WithRules appends rules to the base table
func WithRules(rules ...Rule) Option {
	return func(d *Detector) {
		d.base = append(d.base, rules...)
	}
}

// WithOverlay appends rules to a jurisdiction overlay
func WithOverlay(j Jurisdiction, rules ...Rule) Option {
	return func(d *Detector) {
		d.overlays[j] = append(d.overlays[j], rules...)
	}
}

// NewDetector creates a Detector with the built-in rule table
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		base:     append([]Rule(nil), baseRules...),
		overlays: make(map[Jurisdiction][]Rule, len(overlayRules)),
		policy:   DefaultPolicy(),
	}
	for j, rules := range overlayRules {
		d.overlays[j] = append([]Rule(nil), rules...)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the detector's scoring policy
func (d *Detector) Policy() Policy {
	return d.policy
}

// Rules returns the base rules followed by the overlay for jurisdiction
func (d *Detector) Rules(jurisdiction string) []Rule {
	rules := append([]Rule(nil), d.base...)
	return append(rules, d.overlays[NormalizeJurisdiction(jurisdiction)]...)
}

// NormalizeJurisdiction upper-cases a jurisdiction code and maps common
// aliases ("US-CA", "GB") onto supported overlays
func NormalizeJurisdiction(jurisdiction string) Jurisdiction {
	j := strings.ToUpper(strings.TrimSpace(jurisdiction))
	switch j {
	case "", "USA":
		return JurisdictionUS
	case "US-CA", "CALIFORNIA":
		return JurisdictionCA
	case "GB", "GB-ENG", "UNITED KINGDOM":
		return JurisdictionUK
	}
	return Jurisdiction(j)
}

// Detect checks text against the base rules and the jurisdiction overlay
func (d *Detector) Detect(text, jurisdiction string) Result {
	var warnings []types.BiasWarning
	type span struct {
		category types.BiasCategory
		start    int
		end      int
	}
	seen := make(map[span]bool)

	for _, rule := range d.Rules(jurisdiction) {
		matches := rule.Pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		excluded := exclusionSpans(rule, text)
		for _, m := range matches {
			if within(m, excluded) {
				continue
			}
			key := span{rule.Category, m[0], m[1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			warnings = append(warnings, types.BiasWarning{
				Category:   rule.Category,
				Severity:   rule.Severity,
				Text:       text[m[0]:m[1]],
				Start:      m[0],
				End:        m[1],
				Message:    rule.Message,
				Suggestion: Suggestion(rule.Category),
			})
		}
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Start < warnings[j].Start
	})

	score := Score(warnings, d.policy)
	return Result{
		Passed:   len(warnings) == 0 || score >= d.policy.PassScore,
		Warnings: warnings,
		Score:    score,
	}
}

// Score subtracts the policy deduction for each warning from 100, floored at 0
func Score(warnings []types.BiasWarning, policy Policy) int {
	score := 100
	for _, w := range warnings {
		score -= policy.Deductions[w.Severity]
	}
	if score < 0 {
		return 0
	}
	return score
}

func exclusionSpans(rule Rule, text string) [][]int {
	var spans [][]int
	for _, ex := range rule.Exclusions {
		spans = append(spans, ex.FindAllStringIndex(text, -1)...)
	}
	return spans
}

func within(m []int, spans [][]int) bool {
	for _, s := range spans {
		if s[0] <= m[0] && m[1] <= s[1] {
			return true
		}
	}
	return false
}
