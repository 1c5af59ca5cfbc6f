package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodTemplate = `Dear {{candidate_name}},

Thank you for applying for the {{job_title}} role at {{company_name}}. After reviewing your interview results against our rubric, we will not be moving forward with your application at this time.

The main areas behind this decision were: {{reasons}}.

We appreciate the time you invested in the process and wish you well in your search.

Sincerely,
{{recruiter_name}}`

func rulesOf(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Rule)
	}
	return out
}

func TestLint_GoodTemplate(t *testing.T) {
	result := NewLinter(nil).Lint(goodTemplate, DefaultContext())

	assert.True(t, result.Passed)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Info)
	assert.Equal(t, 100, result.Score)
}

func TestLint_MissingRequiredPlaceholder(t *testing.T) {
	tmpl := strings.ReplaceAll(goodTemplate, "{{job_title}}", "open")
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "required_placeholders", result.Errors[0].Rule)
	assert.Contains(t, result.Errors[0].Message, "{{job_title}}")
	assert.Equal(t, 80, result.Score)
}

func TestLint_MissingRecommendedPlaceholder(t *testing.T) {
	tmpl := strings.ReplaceAll(goodTemplate, "{{recruiter_name}}", "The Hiring Team")
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.True(t, result.Passed)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "{{recruiter_name}}")
	assert.Equal(t, 90, result.Score)
}

func TestLint_EmptyTemplate(t *testing.T) {
	result := NewLinter(nil).Lint("   \n ", DefaultContext())

	assert.False(t, result.Passed)
	assert.Equal(t, []string{"non_empty", "required_placeholders", "required_placeholders"}, rulesOf(result.Errors))
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 20, result.Score)
}

func TestLint_ForbiddenPhrases(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
		kind   string
	}{
		{"promise", "We will keep your resume on file for future roles.", "misleading promise"},
		{"absolute", "You will never be considered again.", "absolute negative"},
		{"deflection", "We went in a different direction.", "meaningless deflection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := goodTemplate + "\n\n" + tt.phrase
			result := NewLinter(nil).Lint(tmpl, DefaultContext())

			assert.False(t, result.Passed)
			assert.Contains(t, rulesOf(result.Errors), "forbidden_phrases")
			found := false
			for _, e := range result.Errors {
				if e.Rule == "forbidden_phrases" && strings.Contains(e.Message, tt.kind) {
					found = true
					assert.Greater(t, e.Position, 0)
				}
			}
			assert.True(t, found)
		})
	}
}

func TestLint_BiasPromotion(t *testing.T) {
	tmpl := goodTemplate + "\n\nWe noted that you are pregnant and have a strong accent."
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.False(t, result.Passed)
	assert.Equal(t, []string{"bias"}, rulesOf(result.Errors))
	assert.Equal(t, []string{"bias"}, rulesOf(result.Warnings))
	assert.Contains(t, result.Errors[0].Message, "pregnant")
}

func TestLint_BiasMediumIsInfo(t *testing.T) {
	tmpl := goodTemplate + "\n\nShe would like to thank you."
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.True(t, result.Passed)
	assert.Equal(t, []string{"bias"}, rulesOf(result.Info))
}

func TestLint_RubricSource(t *testing.T) {
	tmpl := goodTemplate + "\n\nYour communication score was {{rubric.communication}}."

	t.Run("no rubric fields", func(t *testing.T) {
		result := NewLinter(nil).Lint(tmpl, DefaultContext())
		assert.False(t, result.Passed)
		assert.Equal(t, []string{"rubric_source"}, rulesOf(result.Errors))
	})

	t.Run("known field", func(t *testing.T) {
		ctx := DefaultContext()
		ctx.RubricFields = []string{"Communication"}
		result := NewLinter(nil).Lint(tmpl, ctx)
		assert.True(t, result.Passed)
		assert.Empty(t, result.Warnings)
	})

	t.Run("unknown field", func(t *testing.T) {
		ctx := DefaultContext()
		ctx.RubricFields = []string{"leadership"}
		result := NewLinter(nil).Lint(tmpl, ctx)
		assert.True(t, result.Passed)
		assert.Equal(t, []string{"rubric_source"}, rulesOf(result.Warnings))
	})
}

func TestLint_LengthAndTokenBudgets(t *testing.T) {
	ctx := DefaultContext()
	ctx.MaxLength = 100
	ctx.MaxTokens = 10

	result := NewLinter(nil).Lint(goodTemplate, ctx)

	assert.False(t, result.Passed)
	assert.Equal(t, []string{"length_budget"}, rulesOf(result.Errors))
	assert.Equal(t, []string{"token_budget"}, rulesOf(result.Warnings))
}

func TestLint_NearLengthBudgetIsInfo(t *testing.T) {
	ctx := DefaultContext()
	ctx.MaxLength = len(goodTemplate) + 5

	result := NewLinter(nil).Lint(goodTemplate, ctx)

	assert.True(t, result.Passed)
	assert.Equal(t, []string{"length_budget"}, rulesOf(result.Info))
}

func TestLint_ProfessionalTone(t *testing.T) {
	tmpl := goodTemplate + "\n\nHey, WE ARE SO SORRY about this!!"
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.True(t, result.Passed)
	assert.Equal(t, []string{"professional_tone", "professional_tone", "professional_tone"}, rulesOf(result.Warnings))
	assert.Equal(t, 70, result.Score)
}

func TestLint_Grammar(t *testing.T) {
	tmpl := goodTemplate + "\n\nWe  hope to see you apply again in the future"
	result := NewLinter(nil).Lint(tmpl, DefaultContext())

	assert.True(t, result.Passed)
	assert.Equal(t, []string{"grammar", "grammar"}, rulesOf(result.Info))
	assert.Equal(t, 96, result.Score)
}

func TestLint_Deterministic(t *testing.T) {
	tmpl := goodTemplate + "\n\nHey!! She is not the right fit  and we will never call"
	linter := NewLinter(nil)

	first := linter.Lint(tmpl, DefaultContext())
	second := linter.Lint(tmpl, DefaultContext())

	assert.Equal(t, first, second)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100, Score(0, 0, 0))
	assert.Equal(t, 68, Score(1, 1, 1))
	assert.Equal(t, 0, Score(6, 0, 0))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("Hi {{ candidate_name }}, {{Job_Title}} and {{candidate_name}} again")
	assert.Equal(t, []string{"candidate_name", "job_title"}, names)
}
