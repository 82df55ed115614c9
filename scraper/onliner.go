package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// onlinerAdapter scrapes Onliner's apartment rental catalog. The catalog
// is script-rendered, so this source prefers the rendered transport.
type onlinerAdapter struct {
	cfg     *config.SourceConfig
	fetcher *Fetcher
	max     int
}

func newOnlinerAdapter(cfg *config.SourceConfig, fetcher *Fetcher, max int) *onlinerAdapter {
	return &onlinerAdapter{cfg: cfg, fetcher: fetcher, max: max}
}

func (a *onlinerAdapter) ID() string   { return a.cfg.ID }
func (a *onlinerAdapter) Name() string { return a.cfg.Name }

func (a *onlinerAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	html, err := a.fetcher.Page(ctx, a.cfg.URL, a.cfg.Transport == "rendered")
	if err != nil {
		return nil, fmt.Errorf("onliner: %w", err)
	}
	return parseOnliner(html, a.cfg.BaseURL, a.cfg.Name, a.max)
}

func parseOnliner(html, baseURL, sourceName string, max int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("onliner: parse html: %w", err)
	}

	var listings []models.RawListing
	seen := make(map[string]struct{})

	collect := func(container *goquery.Selection, href string) {
		if len(listings) >= max {
			return
		}
		href = absoluteURL(baseURL, href)
		if !isOnlinerListingLink(href) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		text := selectionText(container)
		listings = append(listings, models.RawListing{
			Source:       sourceName,
			URL:          href,
			AddressText:  text,
			PriceText:    text,
			RoomsText:    text,
			LandlordText: text,
		})
	}

	// Primary: classified cards, which are themselves links.
	doc.Find("a[class*='classified']").Each(func(_ int, card *goquery.Selection) {
		if href, ok := card.Attr("href"); ok {
			collect(card, href)
		}
	})

	// Fallback: any apartment link, using the surrounding card for text.
	if len(listings) == 0 {
		doc.Find("a[href*='/ak/apartments/']").Each(func(_ int, link *goquery.Selection) {
			if href, ok := link.Attr("href"); ok {
				collect(containerOf(link), href)
			}
		})
	}

	return listings, nil
}

// isOnlinerListingLink filters out the catalog's service links that share
// the apartments path prefix.
func isOnlinerListingLink(href string) bool {
	if !strings.Contains(href, "/ak/apartments/") {
		return false
	}
	for _, service := range []string{"/create", "/edit", "/delete"} {
		if strings.Contains(href, service) {
			return false
		}
	}
	rest := href[strings.Index(href, "/ak/apartments/")+len("/ak/apartments/"):]
	rest = strings.SplitN(rest, "?", 2)[0]
	rest = strings.SplitN(rest, "#", 2)[0]
	return rest != ""
}
