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

// realtAdapter scrapes Realt.by long-term flat rentals. Listing pages live
// under /object/; category index pages share the /rent/ prefix and must be
// filtered out.
type realtAdapter struct {
	cfg     *config.SourceConfig
	fetcher *Fetcher
	max     int
}

func newRealtAdapter(cfg *config.SourceConfig, fetcher *Fetcher, max int) *realtAdapter {
	return &realtAdapter{cfg: cfg, fetcher: fetcher, max: max}
}

func (a *realtAdapter) ID() string   { return a.cfg.ID }
func (a *realtAdapter) Name() string { return a.cfg.Name }

func (a *realtAdapter) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	html, err := a.fetcher.Page(ctx, a.cfg.URL, a.cfg.Transport == "rendered")
	if err != nil {
		return nil, fmt.Errorf("realt: %w", err)
	}
	return parseRealt(html, a.cfg.BaseURL, a.cfg.Name, a.max)
}

var realtRoomLinkRe = regexp.MustCompile(`/(\d+)[-\s]?room|/rent/flat/(\d+)|/flat/(\d+)`)

func parseRealt(html, baseURL, sourceName string, max int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("realt: parse html: %w", err)
	}

	var listings []models.RawListing
	seen := make(map[string]struct{})

	doc.Find("a[href*='/object/'], a[href*='/rent/flat-for-long/']").Each(func(_ int, link *goquery.Selection) {
		if len(listings) >= max {
			return
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = absoluteURL(baseURL, href)
		if !isRealtListingLink(href) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		container := containerOf(link)
		text := selectionText(container)

		// Prefer dedicated price/address elements when the card has them;
		// the flattened card text drowns specific fields in noise.
		priceText := text
		if el := container.Find("[class*='price'], [class*='cost'], [class*='amount']").First(); el.Length() > 0 {
			priceText = selectionText(el)
		}
		addressText := text
		if el := container.Find("[class*='address'], [class*='location'], [class*='place']").First(); el.Length() > 0 {
			addressText = selectionText(el)
		}

		roomsText := text
		if m := realtRoomLinkRe.FindStringSubmatch(href); m != nil {
			for _, g := range m[1:] {
				if g != "" {
					roomsText = g + "-комн " + text
					break
				}
			}
		}

		listings = append(listings, models.RawListing{
			Source:       sourceName,
			URL:          href,
			AddressText:  addressText,
			PriceText:    priceText,
			RoomsText:    roomsText,
			LandlordText: text,
		})
	})

	return listings, nil
}

// isRealtListingLink keeps object pages and drops category indexes.
func isRealtListingLink(href string) bool {
	if strings.Contains(href, "/object/") {
		return true
	}
	if !strings.Contains(href, "/rent/flat-for-long/") {
		return false
	}
	rest := href[strings.Index(href, "/rent/flat-for-long/")+len("/rent/flat-for-long/"):]
	rest = strings.Trim(strings.SplitN(rest, "?", 2)[0], "/")
	return rest != "" && !strings.Contains(rest, "office")
}
