package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// kufarAdapter scrapes Kufar's rental search results. Cards carry a
// data-id attribute; when the markup shifts, the /vl/ and /v/ listing
// links are the fallback anchor.
type kufarAdapter struct {
	cfg     *config.SourceConfig
	fetcher *Fetcher
	max     int
}

func newKufarAdapter(cfg *config.SourceConfig, fetcher *Fetcher, max int) *kufarAdapter {
	return &kufarAdapter{cfg: cfg, fetcher: fetcher, max: max}
}

func (a *kufarAdapter) ID() string   { return a.cfg.ID }
func (a *kufarAdapter) Name() string { return a.cfg.Name }

func (a *kufarAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	html, err := a.fetcher.Page(ctx, a.cfg.URL, a.cfg.Transport == "rendered")
	if err != nil {
		return nil, fmt.Errorf("kufar: %w", err)
	}
	return parseKufar(html, a.cfg.BaseURL, a.cfg.Name, a.max)
}

var kufarLinkRe = regexp.MustCompile(`/(?:vl|v)/`)

func parseKufar(html, baseURL, sourceName string, max int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("kufar: parse html: %w", err)
	}

	var listings []models.RawListing
	seen := make(map[string]struct{})

	collect := func(container *goquery.Selection, href string) {
		if len(listings) >= max {
			return
		}
		href = absoluteURL(baseURL, href)
		if href == "" {
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

	// Primary: cards with a data-id attribute.
	doc.Find("div[data-id], article[data-id]").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			return kufarLinkRe.MatchString(href)
		}).First()
		if href, ok := link.Attr("href"); ok {
			collect(card, href)
		}
	})

	// Fallback: bare listing links.
	if len(listings) == 0 {
		doc.Find("a").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || !kufarLinkRe.MatchString(href) {
				return
			}
			collect(containerOf(link), href)
		})
	}

	return listings, nil
}
