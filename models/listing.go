package models

import "time"

// Landlord is who is offering the listing.
type Landlord string

const (
	LandlordOwner  Landlord = "Собственник"
	LandlordAgency Landlord = "Агентство"
)

// AddressUnknown marks a listing whose address could not be extracted.
// Distinct from "" so filters can treat missing addresses specially.
const AddressUnknown = "Адрес не указан"

// RawListing is the untrusted output of a source adapter. Any field may be
// empty; the free-text fragments are normalized downstream.
type RawListing struct {
	Source       string
	URL          string
	AddressText  string
	PriceText    string
	RoomsText    string
	LandlordText string

	// LandlordFlag is a structured owner/agency signal some sources expose
	// directly (e.g. an "owner" badge). When set it overrides text heuristics.
	LandlordFlag *Landlord
}

// Listing is a normalized, unit-consistent listing. ID is a content hash of
// the canonical URL, so re-fetches of the same listing always agree.
type Listing struct {
	ID       string   `json:"listing_id" db:"listing_id"`
	Source   string   `json:"source" db:"source"`
	Address  string   `json:"address" db:"address"`
	Rooms    *int     `json:"rooms,omitempty" db:"rooms"`
	PriceBYN *float64 `json:"price_byn,omitempty" db:"price_byn"`
	PriceUSD *float64 `json:"price_usd,omitempty" db:"price_usd"`
	Landlord Landlord `json:"landlord" db:"landlord"`
	URL      string   `json:"url" db:"url"`
}

// StoredListing is a Listing plus its dedup-store lifecycle fields.
type StoredListing struct {
	Listing
	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	IsActive    bool      `json:"is_active" db:"is_active"`
}
