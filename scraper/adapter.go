package scraper

import (
	"context"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// Adapter maps one listing site to raw listing records. Adapters are
// opaque to the orchestrator: site-specific DOM quirks stay behind this
// interface. An adapter is safe to call concurrently with other adapters,
// not necessarily with itself.
type Adapter interface {
	ID() string
	Name() string
	FetchListings(ctx context.Context) ([]models.RawListing, error)
}

// NewAdapter builds the adapter for a configured source. Unknown source IDs
// fall back to the generic link-pattern adapter, which needs a valid
// link_pattern in the source config.
func NewAdapter(cfg *config.SourceConfig, fetcher *Fetcher, maxListings int) (Adapter, error) {
	switch cfg.ID {
	case "kufar":
		return newKufarAdapter(cfg, fetcher, maxListings), nil
	case "onliner":
		return newOnlinerAdapter(cfg, fetcher, maxListings), nil
	case "realt":
		return newRealtAdapter(cfg, fetcher, maxListings), nil
	case "domovita":
		return newDomovitaAdapter(cfg, fetcher, maxListings), nil
	default:
		return newGenericAdapter(cfg, fetcher, maxListings)
	}
}
