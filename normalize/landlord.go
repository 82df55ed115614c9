package normalize

import (
	"strings"

	"github.com/Pererenchina/home-monitor-bot/models"
)

// Keyword sets for landlord classification. Owner keywords win when both
// appear. Navigation boilerplate ("агентство недвижимости" in a site menu)
// suppresses the agency keywords so a chrome phrase doesn't misclassify a
// private listing.
var (
	ownerKeywords = []string{
		"собственник", "от собственника", "без посредников",
		"напрямую от собственника", "хозяин", "владелец",
		"от хозяина", "без агентств", "частное лицо",
		"физлицо", "физическое лицо", "от владельца",
		"без риэлторов",
	}
	agencyKeywords = []string{
		"агент сдает", "агентство сдает", "риэлтор сдает",
		"от агента", "от агентства", "от риэлтора",
		"через агента", "через агентство", "через риэлтора",
		"агентство",
	}
	navPhrases = []string{
		"агент недвижимости", "агентство недвижимости", "риэлторское агентство",
		"офис недвижимости", "бюро недвижимости", "агент по недвижимости",
	}
)

// Classify maps free text to an owner/agency enum. A structured flag from
// the adapter always wins over text heuristics. Absent any signal the
// configured default applies.
func (n *Normalizer) Classify(text string, flag *models.Landlord) models.Landlord {
	if flag != nil {
		return *flag
	}

	lower := strings.ToLower(text)

	for _, kw := range ownerKeywords {
		if strings.Contains(lower, kw) {
			return models.LandlordOwner
		}
	}

	hasNavPhrase := false
	for _, phrase := range navPhrases {
		if strings.Contains(lower, phrase) {
			hasNavPhrase = true
			break
		}
	}
	if !hasNavPhrase {
		for _, kw := range agencyKeywords {
			if strings.Contains(lower, kw) {
				return models.LandlordAgency
			}
		}
	}

	return n.opts.DefaultLandlord
}
