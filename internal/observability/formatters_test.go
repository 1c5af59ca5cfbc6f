package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/types"
)

func TestPrintLintResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintLintResult(lint.Result{
		Passed: false,
		Score:  70,
		Errors: []lint.Issue{
			{Rule: "required_placeholders", Severity: lint.SeverityError, Message: "missing required placeholder {{candidate_name}}"},
		},
		Warnings: []lint.Issue{
			{Rule: "professional_tone", Severity: lint.SeverityWarning, Message: "excessive punctuation", Position: 12},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "TEMPLATE LINT")
	assert.Contains(t, output, "FAILED")
	assert.Contains(t, output, "70/100")
	assert.Contains(t, output, "required_placeholders")
	assert.Contains(t, output, "professional_tone")
}

func TestPrintLintResult_Clean(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintLintResult(lint.Result{Passed: true, Score: 100})
	output := buf.String()

	assert.Contains(t, output, "PASSED")
	assert.NotContains(t, output, "Rule")
}

func TestPrintBiasResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	result := bias.NewDetector().Detect("We were looking for someone younger and more energetic young talent.", "US")
	p.PrintBiasResult(result, "us")
	output := buf.String()

	assert.Contains(t, output, "BIAS CHECK")
	assert.Contains(t, output, "Jurisdiction: US")
	assert.Contains(t, output, string(types.CategoryAge))
}

func TestPrintWarnings_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintWarnings(nil)

	assert.Empty(t, buf.String())
}

func TestPrintCard(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCard(types.ExplainableCard{
		Version:      "1.0",
		DecisionID:   "d-1",
		CandidateID:  "c-1",
		JobTitle:     "Backend Engineer",
		OverallScore: 60,
		PassingScore: 70,
		Reasons:      []string{"System Design: Scored 40% (threshold: 70%)"},
		Strengths:    []string{"Communication: met expectations"},
		Deltas: []types.RubricDelta{
			{Criterion: "System Design", Weight: 0.5, Score: 2, Threshold: 3.5, Delta: -1.5, IsDeficient: true},
			{Criterion: "Testing", Weight: 0.5, Threshold: 3.5, Delta: -3.5, IsDeficient: true, Missing: true},
		},
		GeneratedAt: time.Now(),
	})
	output := buf.String()

	assert.Contains(t, output, "EXPLAINABLE CARD v1.0")
	assert.Contains(t, output, "Backend Engineer")
	assert.Contains(t, output, "Scored 40%")
	assert.Contains(t, output, "-1.5")
	assert.Contains(t, output, "missing")
}

func TestPrintReceiptVerification(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	receipt := types.ExplainableReceipt{DecisionID: "d-1", Algorithm: "HMAC-SHA256", Hash: strings.Repeat("a", 64)}

	contents := false
	p.PrintReceiptVerification(receipt, true, &contents)
	output := buf.String()

	assert.Contains(t, output, "Signature: valid")
	assert.Contains(t, output, "Contents:  INVALID")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
