package explain

import (
	"strings"

	"golang.org/x/text/language"
)

// Jurisdiction keys for disclaimer text
const (
	JurisdictionUS = "US"
	JurisdictionEU = "EU"
	JurisdictionUK = "UK"
	JurisdictionCA = "CA"
)

// DefaultLocale is used when a card is generated without a locale
const DefaultLocale = "en-US"

var disclaimers = map[string]string{
	JurisdictionUS: "This summary describes how your interview was evaluated against job-related criteria. " +
		"Employment decisions are made without regard to race, color, religion, sex, national origin, age, " +
		"disability, genetic information or any other status protected by applicable law.",
	JurisdictionEU: "This explanation is provided in accordance with applicable data protection law. " +
		"The decision was based on the job-related criteria listed above. You may request access to, " +
		"rectification of, or human review of the personal data and criteria used in this decision.",
	JurisdictionUK: "This summary sets out the job-related criteria used to assess your application. " +
		"We assess all candidates in line with the Equality Act 2010 and do not take protected " +
		"characteristics into account. You may request a copy of the personal data we hold about you.",
	JurisdictionCA: "This summary describes how your interview was evaluated against job-related criteria. " +
		"Decisions are made in accordance with applicable human rights legislation, without regard to " +
		"any prohibited ground of discrimination.",
	JurisdictionCA + "-fr": "Ce résumé décrit la façon dont votre entrevue a été évaluée selon des critères " +
		"liés à l'emploi. Les décisions sont prises conformément aux lois applicables sur les droits de la " +
		"personne, sans égard à un motif de discrimination interdit.",
}

var euRegions = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true, "DK": true,
	"EE": true, "FI": true, "FR": true, "DE": true, "GR": true, "HU": true, "IE": true,
	"IT": true, "LV": true, "LT": true, "LU": true, "MT": true, "NL": true, "PL": true,
	"PT": true, "RO": true, "SK": true, "SI": true, "ES": true, "SE": true,
}

// CanonicalLocale returns the BCP 47 form of locale, or DefaultLocale when
// locale is empty or cannot be parsed.
func CanonicalLocale(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return DefaultLocale
	}
	return tag.String()
}

// JurisdictionFor maps a locale to a disclaimer jurisdiction. Unknown
// locales map to the US.
func JurisdictionFor(locale string) string {
	tag, err := language.Parse(CanonicalLocale(locale))
	if err != nil {
		return JurisdictionUS
	}
	region, confidence := tag.Region()
	if confidence == language.No {
		return JurisdictionUS
	}
	code := region.String()
	switch {
	case code == "US":
		return JurisdictionUS
	case code == "GB":
		return JurisdictionUK
	case code == "CA":
		return JurisdictionCA
	case euRegions[code]:
		return JurisdictionEU
	default:
		return JurisdictionUS
	}
}

// Disclaimer returns the disclaimer text for locale
func Disclaimer(locale string) string {
	jurisdiction := JurisdictionFor(locale)
	if jurisdiction == JurisdictionCA {
		if tag, err := language.Parse(CanonicalLocale(locale)); err == nil {
			if base, _ := tag.Base(); base.String() == "fr" {
				return disclaimers[JurisdictionCA+"-fr"]
			}
		}
	}
	if text, ok := disclaimers[jurisdiction]; ok {
		return text
	}
	return disclaimers[JurisdictionUS]
}
