package storage

import (
	"context"
	"time"

	"github.com/Pererenchina/home-monitor-bot/filters"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// Store is the persistence surface the pipeline consumes: listing identity
// and dedup, per-recipient delivery marks, filter specs, and cycle
// bookkeeping. Two implementations exist (SQLite, Postgres) selected by
// configuration.
type Store interface {
	// Observe records a listing the first time its id is seen and reports
	// whether this call was that first time. First-write-wins: later
	// observations of the same id never mutate the stored fields, even if
	// they differ.
	Observe(ctx context.Context, listing models.Listing) (firstSeen bool, err error)
	GetListing(ctx context.Context, listingID string) (*models.StoredListing, error)

	// HasBeenSentTo / MarkSentTo track the append-only recipient set of a
	// listing. MarkSentTo is idempotent and never removes a recipient.
	HasBeenSentTo(ctx context.Context, listingID string, recipientID int64) (bool, error)
	MarkSentTo(ctx context.Context, listingID string, recipientID int64) error

	// FilterSpec CRUD. The chat front-end owns the lifecycle; the pipeline
	// only reads ActiveFilterSpecs.
	SaveFilterSpec(ctx context.Context, spec *filters.Spec) error
	DeleteFilterSpec(ctx context.Context, id int64) error
	SetFilterSpecActive(ctx context.Context, id int64, active bool) error
	FilterSpecsByRecipient(ctx context.Context, recipientID int64) ([]filters.Spec, error)
	ActiveFilterSpecs(ctx context.Context) ([]filters.Spec, error)

	// Cycle run bookkeeping.
	CreateCycleRun(ctx context.Context, run *models.CycleRun) error
	FinishCycleRun(ctx context.Context, run *models.CycleRun) error

	// Liveness maintenance used by the background workers.
	OldestActiveListings(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredListing, error)
	TouchListing(ctx context.Context, listingID string, at time.Time) error
	MarkListingInactive(ctx context.Context, listingID string) error
	PruneInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
