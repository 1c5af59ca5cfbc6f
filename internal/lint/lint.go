// Package lint checks letter templates for structural, safety and tone problems
// before they are used for generation.
package lint

import (
	"regexp"
	"strings"

	"github.com/jonathan/decision-letters/internal/bias"
)

// Severity of a lint issue
type Severity string

// Severity constants
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

const (
	// DefaultMaxLength is the default character budget for a template
	DefaultMaxLength = 4000
	// DefaultMaxTokens is the default token budget for a template
	DefaultMaxTokens = 1000
	// charsPerToken is the rough characters-per-token estimate
	charsPerToken = 4
)

// Issue is a single finding
type Issue struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Position int      `json:"position"`
}

// Context supplies what a template is linted against
type Context struct {
	Locale                  string   `json:"locale,omitempty"`
	Jurisdiction            string   `json:"jurisdiction,omitempty"`
	RequiredPlaceholders    []string `json:"required_placeholders,omitempty"`
	RecommendedPlaceholders []string `json:"recommended_placeholders,omitempty"`
	RubricFields            []string `json:"rubric_fields,omitempty"`
	MaxLength               int      `json:"max_length,omitempty"`
	MaxTokens               int      `json:"max_tokens,omitempty"`
}

// DefaultContext returns the placeholders and budgets used when the caller supplies none
func DefaultContext() Context {
	return Context{
		Locale:                  "en-US",
		Jurisdiction:            "US",
		RequiredPlaceholders:    []string{"candidate_name", "job_title"},
		RecommendedPlaceholders: []string{"company_name", "recruiter_name"},
		MaxLength:               DefaultMaxLength,
		MaxTokens:               DefaultMaxTokens,
	}
}

func (c Context) withDefaults() Context {
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Result is the outcome of linting one template
type Result struct {
	Passed   bool    `json:"passed"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Info     []Issue `json:"info"`
	Score    int     `json:"score"`
}

// Linter runs the rule table. It holds no mutable state and is safe for concurrent use.
type Linter struct {
	detector *bias.Detector
	rules    []Rule
}

// NewLinter creates a Linter. A nil detector uses the default bias rules.
func NewLinter(detector *bias.Detector) *Linter {
	if detector == nil {
		detector = bias.NewDetector()
	}
	return &Linter{detector: detector, rules: defaultRules}
}

// Lint runs every rule against the raw template text
func (l *Linter) Lint(template string, ctx Context) Result {
	in := input{
		template:     template,
		ctx:          ctx.withDefaults(),
		placeholders: parsePlaceholders(template),
		detector:     l.detector,
	}

	result := Result{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Info:     []Issue{},
	}
	for _, rule := range l.rules {
		for _, issue := range rule.Check(in) {
			issue.Rule = rule.Name
			switch issue.Severity {
			case SeverityError:
				result.Errors = append(result.Errors, issue)
			case SeverityWarning:
				result.Warnings = append(result.Warnings, issue)
			default:
				issue.Severity = SeverityInfo
				result.Info = append(result.Info, issue)
			}
		}
	}

	result.Score = Score(len(result.Errors), len(result.Warnings), len(result.Info))
	result.Passed = len(result.Errors) == 0
	return result
}

// Score is 100 - 20 per error - 10 per warning - 2 per info, floored at 0
func Score(errors, warnings, info int) int {
	score := 100 - 20*errors - 10*warnings - 2*info
	if score < 0 {
		return 0
	}
	return score
}

type placeholder struct {
	name     string
	position int
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

func parsePlaceholders(template string) []placeholder {
	var out []placeholder
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(template, -1) {
		out = append(out, placeholder{
			name:     strings.ToLower(template[m[2]:m[3]]),
			position: m[0],
		})
	}
	return out
}

// Placeholders returns the distinct placeholder names referenced by template, in order of first use
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range parsePlaceholders(template) {
		if !seen[p.name] {
			seen[p.name] = true
			names = append(names, p.name)
		}
	}
	return names
}
