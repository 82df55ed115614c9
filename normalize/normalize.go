// Package normalize converts the free-text fragments of raw listing records
// into typed, unit-consistent fields. Every function here is pure: no I/O,
// no shared state, deterministic for a given input and Options.
package normalize

import (
	"fmt"

	"github.com/Pererenchina/home-monitor-bot/identity"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// Options carries the tunable policy knobs of the normalizer. The price
// thresholds are empirical for the BYN/USD pair and drift with exchange
// rates, so they are configuration rather than constants.
type Options struct {
	// PriceRatioThreshold: when both currencies are present and
	// byn/usd exceeds it, the BYN value is assumed to be in kopecks.
	PriceRatioThreshold float64
	// PriceAbsThreshold: a solo BYN value above it is assumed to be kopecks.
	PriceAbsThreshold float64
	// PriceAbsSoloThreshold: a BYN value still above it after correction is
	// rejected as a mis-parse.
	PriceAbsSoloThreshold float64
	// DefaultLandlord is used when no owner/agency signal is found. The
	// owner default reflects this market's observed base rate; it is a
	// policy choice, not a parsed fact.
	DefaultLandlord models.Landlord
}

// DefaultOptions returns the empirical defaults.
func DefaultOptions() Options {
	return Options{
		PriceRatioThreshold:   10,
		PriceAbsThreshold:     10000,
		PriceAbsSoloThreshold: 100000,
		DefaultLandlord:       models.LandlordOwner,
	}
}

// Normalizer applies Options to raw listing records.
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.PriceRatioThreshold <= 0 {
		opts.PriceRatioThreshold = 10
	}
	if opts.PriceAbsThreshold <= 0 {
		opts.PriceAbsThreshold = 10000
	}
	if opts.PriceAbsSoloThreshold <= 0 {
		opts.PriceAbsSoloThreshold = 100000
	}
	if opts.DefaultLandlord == "" {
		opts.DefaultLandlord = models.LandlordOwner
	}
	return &Normalizer{opts: opts}
}

// Normalize converts a raw record into a typed listing. The only way it can
// fail is a missing or unparseable URL: without one there is no identity.
func (n *Normalizer) Normalize(raw models.RawListing) (models.Listing, error) {
	canonical, err := identity.CanonicalURL(raw.URL)
	if err != nil {
		return models.Listing{}, fmt.Errorf("listing from %s: %w", raw.Source, err)
	}

	byn, usd := ExtractPrices(raw.PriceText)
	byn = n.correctUnits(byn, usd)

	rooms := ExtractRooms(raw.RoomsText)
	if rooms == nil {
		rooms = ExtractRooms(raw.AddressText)
	}

	return models.Listing{
		ID:       identity.ListingID(canonical),
		Source:   raw.Source,
		Address:  ExtractAddress(raw.AddressText),
		Rooms:    rooms,
		PriceBYN: byn,
		PriceUSD: usd,
		Landlord: n.Classify(raw.LandlordText, raw.LandlordFlag),
		URL:      canonical,
	}, nil
}
