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

// genericAdapter covers sources configured purely through YAML: it collects
// links matching the configured pattern and hands the surrounding card text
// to normalization.
type genericAdapter struct {
	cfg     *config.SourceConfig
	fetcher *Fetcher
	max     int
	linkRe  *regexp.Regexp
}

func newGenericAdapter(cfg *config.SourceConfig, fetcher *Fetcher, max int) (*genericAdapter, error) {
	if cfg.LinkPattern == "" {
		return nil, fmt.Errorf("generic adapter %q: link_pattern is required", cfg.ID)
	}
	re, err := regexp.Compile(cfg.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("generic adapter %q: bad link_pattern: %w", cfg.ID, err)
	}
	return &genericAdapter{cfg: cfg, fetcher: fetcher, max: max, linkRe: re}, nil
}

func (a *genericAdapter) ID() string   { return a.cfg.ID }
func (a *genericAdapter) Name() string { return a.cfg.Name }

func (a *genericAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	html, err := a.fetcher.Page(ctx, a.cfg.URL, a.cfg.Transport == "rendered")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.ID, err)
	}
	return parseGeneric(html, a.cfg.BaseURL, a.cfg.Name, a.linkRe, a.max)
}

func parseGeneric(html, baseURL, sourceName string, linkRe *regexp.Regexp, max int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var listings []models.RawListing
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		if len(listings) >= max {
			return
		}
		href, _ := link.Attr("href")
		if !linkRe.MatchString(href) {
			return
		}
		href = absoluteURL(baseURL, href)
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		text := selectionText(containerOf(link))
		listings = append(listings, models.RawListing{
			Source:       sourceName,
			URL:          href,
			AddressText:  text,
			PriceText:    text,
			RoomsText:    text,
			LandlordText: text,
		})
	})

	return listings, nil
}
