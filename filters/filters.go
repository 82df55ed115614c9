// Package filters evaluates recipient-owned filter specifications against
// normalized listings. Predicates combine with logical AND. Hard predicates
// reject a listing that lacks the relevant field; soft predicates are
// satisfied when the data is missing, so a listing is never dropped for an
// incomplete parse alone.
package filters

import (
	"strings"
	"time"

	"github.com/Pererenchina/home-monitor-bot/models"
)

// Spec is one recipient-owned, named, independently toggleable predicate
// set. A recipient may own several. Two structurally different constraint
// shapes exist historically (a source allow-list and a city/keyword
// constraint) and both may appear in one spec; each compiles to one entry
// in a single predicate list rather than branching on shape.
type Spec struct {
	ID          int64  `json:"id"`
	RecipientID int64  `json:"recipient_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`

	Rooms       *int             `json:"rooms,omitempty"`
	MinPriceUSD *float64         `json:"min_price_usd,omitempty"`
	MaxPriceUSD *float64         `json:"max_price_usd,omitempty"`
	Landlord    *models.Landlord `json:"landlord,omitempty"`

	Sources         []string `json:"sources,omitempty"`
	City            string   `json:"city,omitempty"`
	AddressKeywords []string `json:"address_keywords,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type predicate func(models.Listing) bool

// Matches reports whether the listing satisfies every predicate of the
// spec. An absent predicate (field unset) is always satisfied.
func Matches(spec Spec, listing models.Listing) bool {
	for _, p := range compile(spec) {
		if !p(listing) {
			return false
		}
	}
	return true
}

func compile(spec Spec) []predicate {
	var preds []predicate

	if spec.Rooms != nil {
		want := *spec.Rooms
		// Hard: a listing with no room count fails an active rooms filter.
		preds = append(preds, func(l models.Listing) bool {
			return l.Rooms != nil && *l.Rooms == want
		})
	}

	if spec.MinPriceUSD != nil {
		min := *spec.MinPriceUSD
		// Soft: no USD price may just mean the price was quoted in BYN.
		preds = append(preds, func(l models.Listing) bool {
			return l.PriceUSD == nil || *l.PriceUSD >= min
		})
	}

	if spec.MaxPriceUSD != nil {
		max := *spec.MaxPriceUSD
		preds = append(preds, func(l models.Listing) bool {
			return l.PriceUSD == nil || *l.PriceUSD <= max
		})
	}

	if spec.Landlord != nil {
		want := strings.ToLower(string(*spec.Landlord))
		preds = append(preds, func(l models.Listing) bool {
			return strings.ToLower(string(l.Landlord)) == want
		})
	}

	if len(spec.Sources) > 0 {
		allowed := make(map[string]struct{}, len(spec.Sources))
		for _, s := range spec.Sources {
			allowed[strings.ToLower(s)] = struct{}{}
		}
		preds = append(preds, func(l models.Listing) bool {
			_, ok := allowed[strings.ToLower(l.Source)]
			return ok
		})
	}

	if spec.City != "" || len(spec.AddressKeywords) > 0 {
		preds = append(preds, addressPredicate(spec.City, spec.AddressKeywords))
	}

	return preds
}

// addressPredicate is soft: when the address is the explicit unknown marker
// the constraint is skipped entirely. Otherwise the city (when set) must
// appear in the address, and at least one keyword (when any are set) must
// appear too, both case-insensitively.
func addressPredicate(city string, keywords []string) predicate {
	cityLower := strings.ToLower(city)
	return func(l models.Listing) bool {
		addr := strings.ToLower(l.Address)
		if addr == "" || addr == strings.ToLower(models.AddressUnknown) {
			return true
		}
		if cityLower != "" && !strings.Contains(addr, cityLower) {
			return false
		}
		if len(keywords) > 0 {
			for _, kw := range keywords {
				if kw != "" && strings.Contains(addr, strings.ToLower(kw)) {
					return true
				}
			}
			return false
		}
		return true
	}
}
