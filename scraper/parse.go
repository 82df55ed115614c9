package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// selectionText flattens a selection into single-spaced text, the same
// shape the normalizer's patterns are written against.
func selectionText(s *goquery.Selection) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s.Text(), " "))
}

// absoluteURL resolves a scraped href against the source's base URL.
func absoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}

// containerOf walks up from a link to the card element holding the
// listing's text (price, rooms, address all live on the card, not the
// anchor).
func containerOf(link *goquery.Selection) *goquery.Selection {
	container := link.Closest("article")
	if container.Length() == 0 {
		container = link.ParentsFiltered("div, li").First()
	}
	if container.Length() == 0 {
		container = link
	}
	return container
}
