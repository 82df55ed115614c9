package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Per-currency pattern lists, in priority order. The first pattern whose
// captured value lies inside the currency's plausible range wins.
var (
	usdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:\s?\d+)*(?:\.\d+)?)\s*\$`),
		regexp.MustCompile(`(?i)(\d+(?:\s?\d+)*(?:\.\d+)?)\s*(?:USD|у\.е\.)`),
		regexp.MustCompile(`\$\s*(\d+(?:\s?\d+)*(?:\.\d+)?)`),
	}
	bynPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\s?\d+)*(?:\.\d+)?)\s*(?:BYN|р\.|руб|бел\.?\s*руб)`),
	}
)

// Plausible extraction bounds. USD rents in this market sit well under
// 10000; raw BYN may arrive in kopecks, so its bound is two orders wider
// and the kopeck correction happens afterwards.
const (
	maxPlausibleUSD = 10000
	maxPlausibleBYN = 1000000
)

// ExtractPrices scans free text for currency-tagged numbers and returns the
// BYN and USD candidates independently. Values outside the plausible range
// are rejected as mis-parses, not accepted at face value. No unit
// correction happens here; see Normalizer.correctUnits.
func ExtractPrices(text string) (byn, usd *float64) {
	if text == "" {
		return nil, nil
	}
	cleaned := strings.NewReplacer(",", "", " ", " ").Replace(text)

	usd = firstPlausible(cleaned, usdPatterns, maxPlausibleUSD)
	byn = firstPlausible(cleaned, bynPatterns, maxPlausibleBYN)
	return byn, usd
}

func firstPlausible(text string, patterns []*regexp.Regexp, max float64) *float64 {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], " ", ""), 64)
		if err != nil || v <= 0 || v >= max {
			continue
		}
		return &v
	}
	return nil
}

// correctUnits fixes BYN values reported in kopecks instead of rubles. It
// must run exactly once per listing, after both currencies are extracted:
// a plausible BYN/USD market ratio is a small single-digit number, so a
// ratio above the threshold means the BYN figure is in minor units. With no
// USD cross-check the absolute threshold stands in. A solo value still
// implausible after correction is dropped as a mis-parse.
func (n *Normalizer) correctUnits(byn, usd *float64) *float64 {
	if byn == nil {
		return nil
	}
	v := *byn
	switch {
	case usd != nil && *usd > 0:
		if v / *usd > n.opts.PriceRatioThreshold {
			v /= 100
		}
	case v > n.opts.PriceAbsThreshold:
		v /= 100
		if v > n.opts.PriceAbsSoloThreshold {
			return nil
		}
	}
	return &v
}
