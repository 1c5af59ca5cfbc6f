package lint

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/types"
)

// Rule is one independent check. Rules never share state, so they may run in any order.
type Rule struct {
	Name  string
	Check func(in input) []Issue
}

type input struct {
	template     string
	ctx          Context
	placeholders []placeholder
	detector     *bias.Detector
}

func (in input) has(name string) bool {
	name = strings.ToLower(name)
	for _, p := range in.placeholders {
		if p.name == name {
			return true
		}
	}
	return false
}

var defaultRules = []Rule{
	{Name: "non_empty", Check: checkNonEmpty},
	{Name: "required_placeholders", Check: checkRequiredPlaceholders},
	{Name: "recommended_placeholders", Check: checkRecommendedPlaceholders},
	{Name: "forbidden_phrases", Check: checkForbiddenPhrases},
	{Name: "bias", Check: checkBias},
	{Name: "length_budget", Check: checkLength},
	{Name: "token_budget", Check: checkTokens},
	{Name: "rubric_source", Check: checkRubricSource},
	{Name: "professional_tone", Check: checkTone},
	{Name: "grammar", Check: checkGrammar},
}

// forbiddenPhrase is harsher than bias language: these always make a template unusable
type forbiddenPhrase struct {
	pattern *regexp.Regexp
	kind    string
}

func forbidden(kind string, patterns ...string) []forbiddenPhrase {
	out := make([]forbiddenPhrase, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, forbiddenPhrase{pattern: regexp.MustCompile(`(?i)\b` + p + `\b`), kind: kind})
	}
	return out
}

var forbiddenPhrases = concat(
	forbidden("absolute negative",
		`will never`,
		`never be considered`,
		`not qualified for any`,
		`under no circumstances`,
		`do not reapply`,
		`don'?t reapply`,
	),
	forbidden("misleading promise",
		`guarantee[ds]?`,
		`we promise`,
		`we will (definitely )?contact you`,
		`keep your (resume|application) on file`,
		`first in line`,
	),
	forbidden("meaningless deflection",
		`not the right fit`,
		`(went|go|going) in a different direction`,
		`for various reasons`,
		`for reasons we cannot share`,
		`it'?s not you`,
	),
)

func concat(lists ...[]forbiddenPhrase) []forbiddenPhrase {
	var out []forbiddenPhrase
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func checkNonEmpty(in input) []Issue {
	if strings.TrimSpace(in.template) == "" {
		return []Issue{{Severity: SeverityError, Message: "template is empty"}}
	}
	return nil
}

func checkRequiredPlaceholders(in input) []Issue {
	var issues []Issue
	for _, name := range in.ctx.RequiredPlaceholders {
		if !in.has(name) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Message:  fmt.Sprintf("missing required placeholder {{%s}}", name),
			})
		}
	}
	return issues
}

func checkRecommendedPlaceholders(in input) []Issue {
	var issues []Issue
	for _, name := range in.ctx.RecommendedPlaceholders {
		if !in.has(name) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("missing recommended placeholder {{%s}}", name),
			})
		}
	}
	return issues
}

func checkForbiddenPhrases(in input) []Issue {
	var issues []Issue
	for _, fp := range forbiddenPhrases {
		for _, m := range fp.pattern.FindAllStringIndex(in.template, -1) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Message:  fmt.Sprintf("forbidden phrase (%s): %q", fp.kind, in.template[m[0]:m[1]]),
				Position: m[0],
			})
		}
	}
	return issues
}

func checkBias(in input) []Issue {
	result := in.detector.Detect(in.template, in.ctx.Jurisdiction)
	issues := make([]Issue, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		severity := SeverityInfo
		switch w.Severity {
		case types.SeverityCritical:
			severity = SeverityError
		case types.SeverityHigh:
			severity = SeverityWarning
		}
		issues = append(issues, Issue{
			Severity: severity,
			Message:  fmt.Sprintf("%s (%s): %q. %s", w.Message, w.Category, w.Text, w.Suggestion),
			Position: w.Start,
		})
	}
	return issues
}

func checkLength(in input) []Issue {
	length := utf8.RuneCountInString(in.template)
	limit := in.ctx.MaxLength
	switch {
	case length > limit:
		return []Issue{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("template is %d characters, over the %d character budget", length, limit),
		}}
	case length*10 > limit*9:
		return []Issue{{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("template is %d characters, within 10%% of the %d character budget", length, limit),
		}}
	}
	return nil
}

// EstimateTokens estimates tokens as characters / 4, rounded up
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	return (chars + charsPerToken - 1) / charsPerToken
}

func checkTokens(in input) []Issue {
	tokens := EstimateTokens(in.template)
	if tokens > in.ctx.MaxTokens {
		return []Issue{{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("estimated %d tokens, over the %d token budget", tokens, in.ctx.MaxTokens),
		}}
	}
	return nil
}

func isRubricPlaceholder(name string) bool {
	return strings.HasPrefix(name, "rubric") || strings.Contains(name, "score")
}

func checkRubricSource(in input) []Issue {
	fields := make(map[string]bool, len(in.ctx.RubricFields))
	for _, f := range in.ctx.RubricFields {
		fields[strings.ToLower(f)] = true
	}

	var issues []Issue
	reportedMissing := false
	for _, p := range in.placeholders {
		if !isRubricPlaceholder(p.name) {
			continue
		}
		if len(fields) == 0 {
			if !reportedMissing {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Message:  fmt.Sprintf("placeholder {{%s}} references rubric data but no rubric fields were supplied", p.name),
					Position: p.position,
				})
				reportedMissing = true
			}
			continue
		}
		if field, ok := strings.CutPrefix(p.name, "rubric."); ok && !fields[field] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("placeholder {{%s}} names an unknown rubric field %q", p.name, field),
				Position: p.position,
			})
		}
	}
	return issues
}

var (
	informalPattern    = regexp.MustCompile(`(?i)\b(gonna|wanna|gotta|hey|lol|btw|awesome|cool|guys|kinda|sorta|yeah|nope)\b`)
	punctuationPattern = regexp.MustCompile(`[!?]{2,}`)
	allCapsPattern     = regexp.MustCompile(`\b[A-Z]{2,}(?:\s+[A-Z]{2,}){2,}\b`)
)

func checkTone(in input) []Issue {
	var issues []Issue
	for _, m := range informalPattern.FindAllStringIndex(in.template, -1) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("informal language: %q", in.template[m[0]:m[1]]),
			Position: m[0],
		})
	}
	for _, m := range punctuationPattern.FindAllStringIndex(in.template, -1) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("excessive punctuation: %q", in.template[m[0]:m[1]]),
			Position: m[0],
		})
	}
	for _, m := range allCapsPattern.FindAllStringIndex(in.template, -1) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("all-caps text reads as shouting: %q", in.template[m[0]:m[1]]),
			Position: m[0],
		})
	}
	return issues
}

var (
	paragraphSplit      = regexp.MustCompile(`\n\s*\n`)
	doubledSpacePattern = regexp.MustCompile(`\S( {2,})\S`)
)

// minSentenceWords is the size below which a paragraph is treated as a salutation or sign-off
const minSentenceWords = 5

func checkGrammar(in input) []Issue {
	var issues []Issue

	offset := 0
	for _, loc := range append(paragraphSplit.FindAllStringIndex(in.template, -1), []int{len(in.template), len(in.template)}) {
		paragraph := strings.TrimSpace(in.template[offset:loc[0]])
		start := offset
		offset = loc[1]
		if len(strings.Fields(paragraph)) < minSentenceWords {
			continue
		}
		if strings.HasSuffix(paragraph, "}}") {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(paragraph)
		if !strings.ContainsRune(".!?:,", last) {
			issues = append(issues, Issue{
				Severity: SeverityInfo,
				Message:  "paragraph does not end with terminal punctuation",
				Position: start,
			})
		}
	}

	for _, m := range doubledSpacePattern.FindAllStringSubmatchIndex(in.template, -1) {
		issues = append(issues, Issue{
			Severity: SeverityInfo,
			Message:  "doubled space",
			Position: m[2],
		})
	}
	return issues
}
