package fundrequest

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultLanguage is used for action labels when no preference is given
var DefaultLanguage = language.French

var supportedLanguages = []language.Tag{language.French, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

var actionLabels = map[language.Tag]map[Action]string{
	language.French: {
		ActionCreate:   "Création",
		ActionSubmit:   "Soumission",
		ActionReview:   "Revue comptable",
		ActionValidate: "Validation",
		ActionPay:      "Paiement",
		ActionReject:   "Rejet",
		ActionResubmit: "Nouvelle soumission",
	},
	language.English: {
		ActionCreate:   "Creation",
		ActionSubmit:   "Submission",
		ActionReview:   "Accounting review",
		ActionValidate: "Validation",
		ActionPay:      "Payment",
		ActionReject:   "Rejection",
		ActionResubmit: "Resubmission",
	},
}

var labelCatalog = buildLabelCatalog()

func buildLabelCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLanguage))
	for tag, labels := range actionLabels {
		for action, label := range labels {
			if err := b.SetString(tag, string(action), label); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// MatchLanguage picks the closest supported language for the given
// preferences. ok is false when no supported language is a confident match.
func MatchLanguage(preferred ...language.Tag) (language.Tag, bool) {
	if len(preferred) == 0 {
		return DefaultLanguage, false
	}
	_, idx, conf := languageMatcher.Match(preferred...)
	if conf < language.High {
		return DefaultLanguage, false
	}
	return supportedLanguages[idx], true
}

// LanguageOrDefault returns the supported language matching tag, or DefaultLanguage
func LanguageOrDefault(tag language.Tag) language.Tag {
	matched, _ := MatchLanguage(tag)
	return matched
}

// ActionLabel returns the human-readable label of an action in the given language
func ActionLabel(tag language.Tag, action Action) string {
	p := message.NewPrinter(LanguageOrDefault(tag), message.Catalog(labelCatalog))
	return p.Sprintf(string(action))
}
