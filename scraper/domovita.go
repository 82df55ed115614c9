package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// domovitaAdapter scrapes Domovita flat rentals. Cards carry an explicit
// owner/agency badge which beats text heuristics, so the adapter surfaces it
// as a structured flag.
type domovitaAdapter struct {
	cfg     *config.SourceConfig
	fetcher *Fetcher
	max     int
}

func newDomovitaAdapter(cfg *config.SourceConfig, fetcher *Fetcher, max int) *domovitaAdapter {
	return &domovitaAdapter{cfg: cfg, fetcher: fetcher, max: max}
}

func (a *domovitaAdapter) ID() string   { return a.cfg.ID }
func (a *domovitaAdapter) Name() string { return a.cfg.Name }

func (a *domovitaAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	html, err := a.fetcher.Page(ctx, a.cfg.URL, a.cfg.Transport == "rendered")
	if err != nil {
		return nil, fmt.Errorf("domovita: %w", err)
	}
	return parseDomovita(html, a.cfg.BaseURL, a.cfg.Name, a.max)
}

func parseDomovita(html, baseURL, sourceName string, max int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("domovita: parse html: %w", err)
	}

	var listings []models.RawListing
	seen := make(map[string]struct{})

	collect := func(link *goquery.Selection, href string) {
		if len(listings) >= max {
			return
		}
		href = absoluteURL(baseURL, href)
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		container := containerOf(link)
		text := selectionText(container)

		raw := models.RawListing{
			Source:       sourceName,
			URL:          href,
			AddressText:  text,
			PriceText:    text,
			RoomsText:    text,
			LandlordText: text,
		}

		if badge := container.Find("[class*='owner-info__status'], [class*='owner-status']").First(); badge.Length() > 0 {
			status := strings.ToLower(selectionText(badge))
			switch {
			case strings.Contains(status, "собственник"), strings.Contains(status, "владелец"):
				flag := models.LandlordOwner
				raw.LandlordFlag = &flag
			case strings.Contains(status, "агент"):
				flag := models.LandlordAgency
				raw.LandlordFlag = &flag
			}
		}

		listings = append(listings, raw)
	}

	// Card layout first.
	doc.Find("div[class*='object'] a[href*='/rent/'], div[class*='item'] a[href*='/rent/']").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok || !isDomovitaListingLink(href) {
			return
		}
		collect(link, href)
	})

	// Markup drift fallback: any rent link that looks like a listing page.
	if len(listings) == 0 {
		doc.Find("a[href*='/rent/flats/']").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || !isDomovitaListingLink(href) {
				return
			}
			collect(link, href)
		})
	}

	return listings, nil
}

func isDomovitaListingLink(href string) bool {
	if !strings.Contains(href, "/rent/") {
		return false
	}
	// Listing pages end in a slug with a numeric id; index pages end at the
	// city segment.
	path := strings.Trim(strings.SplitN(href, "?", 2)[0], "/")
	segs := strings.Split(path, "/")
	last := segs[len(segs)-1]
	if last == "minsk" || last == "flats" || last == "rent" {
		return false
	}
	return strings.ContainsAny(last, "0123456789")
}
