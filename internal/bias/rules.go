package bias

import (
	"regexp"

	"github.com/jonathan/decision-letters/internal/types"
)

// Rule is one row of the detection table. A match is discarded when it lies
// entirely inside a match of one of the Exclusions.
type Rule struct {
	ID         string
	Category   types.BiasCategory
	Severity   types.Severity
	Pattern    *regexp.Regexp
	Message    string
	Exclusions []*regexp.Regexp
}

// Jurisdiction selects an overlay of extra rules on top of the base table
type Jurisdiction string

// Supported jurisdictions
const (
	JurisdictionUS Jurisdiction = "US"
	JurisdictionEU Jurisdiction = "EU"
	JurisdictionCA Jurisdiction = "CA"
	JurisdictionUK Jurisdiction = "UK"
)

func newRule(id string, category types.BiasCategory, severity types.Severity, pattern, message string, exclusions ...string) Rule {
	r := Rule{
		ID:       id,
		Category: category,
		Severity: severity,
		Pattern:  regexp.MustCompile(`(?i)` + pattern),
		Message:  message,
	}
	for _, ex := range exclusions {
		r.Exclusions = append(r.Exclusions, regexp.MustCompile(`(?i)`+ex))
	}
	return r
}

// suggestions holds the remediation text attached to every warning of a category
var suggestions = map[types.BiasCategory]string{
	types.CategoryAge:             "Remove age references; describe job-related skills or experience instead.",
	types.CategoryGender:          "Use gender-neutral language such as the candidate's name or \"they\".",
	types.CategoryRaceEthnicity:   "Remove references to race, ethnicity or national origin.",
	types.CategoryDisability:      "Remove disability references; focus on the documented job requirements.",
	types.CategoryReligion:        "Remove references to religion or belief.",
	types.CategoryPregnancyFamily: "Remove references to pregnancy, children or family plans.",
	types.CategoryAppearance:      "Remove comments about physical appearance.",
	types.CategoryHealth:          "Remove references to health or medical information.",
	types.CategoryAccentLanguage:  "Refer only to communication skills the role requires, not accent or native language.",
	types.CategoryMaritalStatus:   "Remove references to marital or relationship status.",
	types.CategoryCulturalFit:     "Replace \"fit\" language with the specific rubric criteria that were not met.",
}

// Suggestion returns the remediation text for a category
func Suggestion(category types.BiasCategory) string {
	return suggestions[category]
}

var baseRules = []Rule{
	newRule("age.explicit", types.CategoryAge, types.SeverityCritical,
		`\b(too old|too young|\d{2}\s*(years|yrs)[\s-]+old|aged?\s+\d{2}|(your|their|his|her|candidate'?s) age|older (workers?|candidates?|people)|younger (candidates?|people|talent|team)|over the hill|past (your|their) prime)\b`,
		"Explicit reference to age"),
	newRule("age.proxy", types.CategoryAge, types.SeverityHigh,
		`\b(overqualified|youthful|energetic young|young and (dynamic|energetic)|digital natives?)\b`,
		"Age proxy language"),
	newRule("gender.explicit", types.CategoryGender, types.SeverityCritical,
		`\b(female|male|wom[ae]n|m[ae]n|girls?|boys?|lady|ladies|gentlem[ae]n|gender)\b`,
		"Explicit reference to gender"),
	newRule("gender.pronoun", types.CategoryGender, types.SeverityMedium,
		`\b(he|she|him|his|her|hers)\b`,
		"Gendered pronoun",
		`\b(his/her|her/his|he/she|she/he|him/her|his or her|her or his|he or she|she or he|him or her|s/he)\b`),
	newRule("race.explicit", types.CategoryRaceEthnicity, types.SeverityCritical,
		`\b(race|racial|ethnic(ity)?|skin colou?r|nationality|national origin|foreigners?|immigrants?|asian|black|white|hispanic|latin[ao]|african|caucasian)\b`,
		"Reference to race, ethnicity or national origin",
		`\b(white ?(paper|board|list|space|label)s?|black ?(box|list)s?)\b`),
	newRule("disability.explicit", types.CategoryDisability, types.SeverityCritical,
		`\b(disabled|disabilit(y|ies)|handicap(ped)?|wheelchair|blind|deaf|special needs|impair(ed|ment)|mental(ly)? ill(ness)?)\b`,
		"Reference to disability",
		`\b(double[- ]blind|blind spots?)\b`),
	newRule("religion.explicit", types.CategoryReligion, types.SeverityCritical,
		`\b(religio(n|us)|church|mosque|synagogue|temple|christian|muslim|jewish|hindu|buddhist|sabbath|prayers?)\b`,
		"Reference to religion"),
	newRule("family.pregnancy", types.CategoryPregnancyFamily, types.SeverityCritical,
		`\b(pregnan(t|cy)|maternity|paternity|expecting a baby|starting a family|family (plans|planning|obligations|commitments)|childcare|children|kids|single (mother|father|parent))\b`,
		"Reference to pregnancy or family status"),
	newRule("appearance.explicit", types.CategoryAppearance, types.SeverityHigh,
		`\b(attractive|unattractive|overweight|obese|physical appearance|appearance|hairstyles?|tattoos?|piercings?|well[- ]groomed|presentable)\b`,
		"Comment on physical appearance"),
	newRule("health.explicit", types.CategoryHealth, types.SeverityHigh,
		`\b(health (conditions?|issues?|problems?)|illness(es)?|sick (leave|days)|medical (conditions?|history)|medications?|diagnos(is|ed)|chronic|injur(y|ies)|mental health)\b`,
		"Reference to health information"),
	newRule("language.accent", types.CategoryAccentLanguage, types.SeverityHigh,
		`\b(accents?|non[- ]native|native (english )?speakers?|broken english|mother tongue|english (is not|isn'?t) (your|their|his|her) first language)\b`,
		"Reference to accent or native language"),
	newRule("marital.explicit", types.CategoryMaritalStatus, types.SeverityHigh,
		`\b(married|unmarried|divorced|widow(ed|er)?|spouse|husband|wife|marital status|relationship status)\b`,
		"Reference to marital status"),
	newRule("fit.culture", types.CategoryCulturalFit, types.SeverityMedium,
		`\b(culture fit|cultural fit|(not|wasn'?t|isn'?t) a (good |great |strong )?fit|fit in (with|well)|one of us|our kind of (person|people))\b`,
		"Vague \"fit\" language can mask protected-class bias"),
	newRule("fit.vague", types.CategoryCulturalFit, types.SeverityLow,
		`\b(gut feeling|didn'?t click|vibe|chemistry)\b`,
		"Subjective impression instead of job-related criteria"),
}

var overlayRules = map[Jurisdiction][]Rule{
	JurisdictionEU: {
		newRule("eu.special_category_health", types.CategoryHealth, types.SeverityCritical,
			`\b(genetic (data|information|testing)|biometric|health data|medical records?)\b`,
			"Special-category personal data (health) under GDPR"),
		newRule("eu.special_category_orientation", types.CategoryGender, types.SeverityCritical,
			`\b(sexual orientation|sex life)\b`,
			"Special-category personal data (sexual orientation) under GDPR"),
		newRule("eu.special_category_belief", types.CategoryReligion, types.SeverityCritical,
			`\b(political (views|opinions|affiliations?)|philosophical beliefs?)\b`,
			"Special-category personal data (belief) under GDPR"),
		newRule("eu.trade_union", types.CategoryCulturalFit, types.SeverityHigh,
			`\b(trade union|union membership)\b`,
			"Trade union membership is special-category personal data under GDPR"),
	},
	JurisdictionCA: {
		newRule("ca.age_proxy_graduation", types.CategoryAge, types.SeverityHigh,
			`\b(graduat(ed|ion) (year|date|in (19|20)\d{2})|class of (19|20)\d{2}|recent (college )?grad(uate)?s?|fresh graduates?|new grads?|years? since graduation)\b`,
			"Graduation timing is an age proxy"),
		newRule("ca.age_proxy_birth", types.CategoryAge, types.SeverityCritical,
			`\b(date of birth|birth ?date|year of birth)\b`,
			"Birth date is an age proxy"),
	},
	JurisdictionUK: {
		newRule("uk.gender_reassignment", types.CategoryGender, types.SeverityCritical,
			`\b(gender reassignment|transgender|transitioning)\b`,
			"Gender reassignment is a protected characteristic under the Equality Act 2010"),
		newRule("uk.civil_partnership", types.CategoryMaritalStatus, types.SeverityCritical,
			`\b(civil partnership|civil partner)\b`,
			"Civil partnership is a protected characteristic under the Equality Act 2010"),
	},
}
