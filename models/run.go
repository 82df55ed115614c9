package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CycleRun records one polling cycle for operational visibility.
type CycleRun struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time `json:"finished_at" db:"finished_at"`
	Status            RunStatus  `json:"status" db:"status"`
	ListingsFetched   int        `json:"listings_fetched" db:"listings_fetched"`
	ListingsNew       int        `json:"listings_new" db:"listings_new"`
	ListingsDelivered int        `json:"listings_delivered" db:"listings_delivered"`
	// SourceErrors counts adapter fetch failures; StoreErrors counts
	// persistence failures. Kept apart so a flaky database does not read
	// as every source being down.
	SourceErrors int `json:"source_errors" db:"source_errors"`
	StoreErrors  int `json:"store_errors" db:"store_errors"`
}
