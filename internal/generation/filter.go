package generation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/types"
)

// DefaultBannedPhrases is the global phrase list checked against every
// generated letter, grouped by the bias taxonomy category it belongs to.
var DefaultBannedPhrases = map[types.BiasCategory][]string{
	types.CategoryAge: {
		"too old", "too young", "overqualified", "digital native", "young and energetic", "recent graduate",
	},
	types.CategoryPregnancyFamily: {
		"pregnant", "pregnancy", "maternity", "paternity", "childcare", "family plans", "having children",
	},
	types.CategoryDisability: {
		"disability", "disabled", "handicapped", "wheelchair",
	},
	types.CategoryReligion: {
		"religion", "religious", "church", "mosque", "synagogue", "temple",
	},
	types.CategoryMaritalStatus: {
		"married", "divorced", "marital status", "single mother", "single father", "spouse",
	},
	types.CategoryAccentLanguage: {
		"accent", "native speaker", "national origin", "foreign-born", "immigrant",
	},
	types.CategoryHealth: {
		"medical condition", "illness", "mental health", "sick leave", "medication",
	},
	types.CategoryAppearance: {
		"attractive", "overweight", "appearance", "grooming",
	},
	types.CategoryCulturalFit: {
		"culture fit", "cultural fit", "not a good fit", "not the right fit",
	},
}

// PhraseMatch is one banned phrase found in text
type PhraseMatch struct {
	Phrase   string             `json:"phrase"`
	Category types.BiasCategory `json:"category,omitempty"`
	Text     string             `json:"text"`
	Start    int                `json:"start"`
	End      int                `json:"end"`
}

type phrasePattern struct {
	phrase   string
	category types.BiasCategory
	pattern  *regexp.Regexp
}

// PhraseFilter matches banned phrases as whole words, case-insensitively
type PhraseFilter struct {
	patterns []phrasePattern
}

// NewPhraseFilter compiles phrases. Categories are visited in taxonomy order
// so match output is stable.
func NewPhraseFilter(phrases map[types.BiasCategory][]string) *PhraseFilter {
	f := &PhraseFilter{}
	for _, category := range types.AllBiasCategories {
		for _, phrase := range phrases[category] {
			if p, ok := compilePhrase(phrase, category); ok {
				f.patterns = append(f.patterns, p)
			}
		}
	}
	return f
}

// DefaultPhraseFilter returns a filter over DefaultBannedPhrases
func DefaultPhraseFilter() *PhraseFilter {
	return NewPhraseFilter(DefaultBannedPhrases)
}

func compilePhrase(phrase string, category types.BiasCategory) (phrasePattern, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return phrasePattern{}, false
	}
	words := strings.Fields(regexp.QuoteMeta(phrase))
	return phrasePattern{
		phrase:   phrase,
		category: category,
		pattern:  regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
	}, true
}

// Check returns every banned phrase in text, including the request-specific
// extra phrases, ordered by position.
func (f *PhraseFilter) Check(text string, extra []string) []PhraseMatch {
	patterns := f.patterns
	if len(extra) > 0 {
		patterns = append([]phrasePattern(nil), f.patterns...)
		for _, phrase := range extra {
			if p, ok := compilePhrase(phrase, ""); ok {
				patterns = append(patterns, p)
			}
		}
	}

	type span struct{ start, end int }
	seen := make(map[span]bool)
	var matches []PhraseMatch
	for _, p := range patterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if seen[s] {
				continue
			}
			seen[s] = true
			matches = append(matches, PhraseMatch{
				Phrase:   p.phrase,
				Category: p.category,
				Text:     text[loc[0]:loc[1]],
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// Warnings converts phrase matches into bias warnings for reviewers
func Warnings(matches []PhraseMatch) []types.BiasWarning {
	warnings := make([]types.BiasWarning, 0, len(matches))
	for _, m := range matches {
		warnings = append(warnings, types.BiasWarning{
			Category:   m.Category,
			Severity:   types.SeverityCritical,
			Text:       m.Text,
			Start:      m.Start,
			End:        m.End,
			Message:    "Banned phrase: " + m.Phrase,
			Suggestion: bias.Suggestion(m.Category),
		})
	}
	return warnings
}
