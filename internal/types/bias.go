// Package types provides type definitions for structured data shared across the decision pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Severity ranks how serious a bias warning is
type Severity string

// Severity constants, most severe first
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// BiasCategory is one entry of the fixed protected-characteristic taxonomy
type BiasCategory string

// BiasCategory constants
const (
	CategoryAge             BiasCategory = "age"
	CategoryGender          BiasCategory = "gender"
	CategoryRaceEthnicity   BiasCategory = "race_ethnicity"
	CategoryDisability      BiasCategory = "disability"
	CategoryReligion        BiasCategory = "religion"
	CategoryPregnancyFamily BiasCategory = "pregnancy_family"
	CategoryAppearance      BiasCategory = "appearance"
	CategoryHealth          BiasCategory = "health"
	CategoryAccentLanguage  BiasCategory = "accent_language"
	CategoryMaritalStatus   BiasCategory = "marital_status"
	CategoryCulturalFit     BiasCategory = "cultural_fit_proxy"
)

// AllBiasCategories lists the taxonomy in display order
var AllBiasCategories = []BiasCategory{
	CategoryAge,
	CategoryGender,
	CategoryRaceEthnicity,
	CategoryDisability,
	CategoryReligion,
	CategoryPregnancyFamily,
	CategoryAppearance,
	CategoryHealth,
	CategoryAccentLanguage,
	CategoryMaritalStatus,
	CategoryCulturalFit,
}

// BiasWarning is a single match of a bias rule against a piece of text.
// Start and End are byte offsets into the checked text.
type BiasWarning struct {
	Category   BiasCategory `json:"category"`
	Severity   Severity     `json:"severity"`
	Text       string       `json:"text"`
	Start      int          `json:"start"`
	End        int          `json:"end"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
}
