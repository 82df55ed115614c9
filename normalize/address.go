package normalize

import (
	"regexp"
	"strings"

	"github.com/Pererenchina/home-monitor-bot/models"
)

// Locality + street patterns in priority order.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Минск[,\s]+(?:ул\.|улица|пр\.|проспект|пер\.|переулок|бул\.|бульвар)\s*([А-Яа-яЁё\s\d,.-]+)`),
	regexp.MustCompile(`(?i)г\.?\s*Минск[,\s]+([А-Яа-яЁё\s\d,.-]+)`),
	regexp.MustCompile(`(?i)Минск[,\s]+([А-Яа-яЁё\s\d,.-]{3,})`),
}

const maxAddressLen = 100

// ExtractAddress pulls a locality + street fragment out of free text.
// Fragments recognized as legal/registration boilerplate are rejected so
// they are never mistaken for the property address. An unusable address is
// the explicit unknown marker, never an empty string, so downstream filters
// can skip it deliberately.
func ExtractAddress(text string) string {
	if text == "" {
		return models.AddressUnknown
	}

	for _, re := range addressPatterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if boilerplateContext(text[:loc[0]]) {
			continue
		}
		part := text[loc[2]:loc[3]]
		// Street and house number come before the first comma; anything
		// after it is the rest of the card text.
		if i := strings.Index(part, ","); i >= 0 {
			part = part[:i]
		}
		part = strings.TrimSpace(strings.Trim(part, ",.- "))
		if part == "" || isBoilerplate(part) {
			continue
		}
		if len([]rune(part)) > maxAddressLen {
			part = string([]rune(part)[:maxAddressLen])
		}
		return "Минск, " + part
	}

	if strings.Contains(strings.ToLower(text), "минск") && !isBoilerplate(text) {
		return "Минск"
	}

	return models.AddressUnknown
}

// isBoilerplate flags legal-registration addresses that sites print in
// their footers and imprint blocks.
func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "юридический") ||
		strings.Contains(lower, "свидетельство о регистрации") ||
		strings.Contains(lower, "унп")
}

// boilerplateContext reports whether the text immediately preceding a
// candidate match labels it as a registration address rather than the
// property address.
func boilerplateContext(prefix string) bool {
	runes := []rune(prefix)
	if len(runes) > 40 {
		runes = runes[len(runes)-40:]
	}
	return isBoilerplate(string(runes))
}
