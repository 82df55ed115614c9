package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pererenchina/home-monitor-bot/filters"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// PostgresStore implements Store on a pgx pool for deployments that share
// the database with other services.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		listing_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		address TEXT,
		rooms INTEGER,
		price_byn DOUBLE PRECISION,
		price_usd DOUBLE PRECISION,
		landlord TEXT,
		url TEXT NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_checked_at TIMESTAMPTZ,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		listing_id TEXT NOT NULL,
		recipient_id BIGINT NOT NULL,
		sent_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (listing_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS filter_specs (
		id BIGSERIAL PRIMARY KEY,
		recipient_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		spec JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status TEXT,
		listings_fetched INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		listings_delivered INTEGER DEFAULT 0,
		source_errors INTEGER DEFAULT 0,
		store_errors INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active, last_checked_at);
	CREATE INDEX IF NOT EXISTS idx_filter_specs_recipient ON filter_specs(recipient_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Observe(ctx context.Context, l models.Listing) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO listings (listing_id, source, address, rooms, price_byn, price_usd, landlord, url, first_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (listing_id) DO NOTHING`,
		l.ID, l.Source, l.Address, l.Rooms, l.PriceBYN, l.PriceUSD, string(l.Landlord), l.URL, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, listingID string) (*models.StoredListing, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT listing_id, source, COALESCE(address, ''), rooms, price_byn, price_usd, COALESCE(landlord, ''), url, first_seen_at, COALESCE(is_active, TRUE)
		FROM listings WHERE listing_id = $1`, listingID)

	l, err := scanPgListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (s *PostgresStore) HasBeenSentTo(ctx context.Context, listingID string, recipientID int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM deliveries WHERE listing_id = $1 AND recipient_id = $2`,
		listingID, recipientID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) MarkSentTo(ctx context.Context, listingID string, recipientID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (listing_id, recipient_id) VALUES ($1, $2)
		ON CONFLICT (listing_id, recipient_id) DO NOTHING`,
		listingID, recipientID)
	return err
}

func (s *PostgresStore) SaveFilterSpec(ctx context.Context, spec *filters.Spec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	if spec.ID == 0 {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO filter_specs (recipient_id, name, active, spec, created_at, updated_at)
			VALUES ($1, $2, $3, '{}', $4, $5)
			RETURNING id`,
			spec.RecipientID, spec.Name, spec.Active, spec.CreatedAt, spec.UpdatedAt).Scan(&spec.ID)
		if err != nil {
			return err
		}
	}

	blob, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE filter_specs SET recipient_id = $1, name = $2, active = $3, spec = $4, updated_at = $5
		WHERE id = $6`,
		spec.RecipientID, spec.Name, spec.Active, blob, spec.UpdatedAt, spec.ID)
	return err
}

func (s *PostgresStore) DeleteFilterSpec(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM filter_specs WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) SetFilterSpecActive(ctx context.Context, id int64, active bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE filter_specs SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), id)
	return err
}

func (s *PostgresStore) FilterSpecsByRecipient(ctx context.Context, recipientID int64) ([]filters.Spec, error) {
	return s.querySpecs(ctx, `
		SELECT id, recipient_id, name, active, spec FROM filter_specs
		WHERE recipient_id = $1 ORDER BY id`, recipientID)
}

func (s *PostgresStore) ActiveFilterSpecs(ctx context.Context) ([]filters.Spec, error) {
	return s.querySpecs(ctx, `
		SELECT id, recipient_id, name, active, spec FROM filter_specs
		WHERE active ORDER BY id`)
}

func (s *PostgresStore) querySpecs(ctx context.Context, query string, args ...any) ([]filters.Spec, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []filters.Spec
	for rows.Next() {
		var (
			spec        filters.Spec
			blob        []byte
			id          int64
			recipientID int64
			name        string
			active      bool
		)
		if err := rows.Scan(&id, &recipientID, &name, &active, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(blob, &spec); err != nil {
			return nil, err
		}
		spec.ID = id
		spec.RecipientID = recipientID
		spec.Name = name
		spec.Active = active
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func (s *PostgresStore) CreateCycleRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_runs (id, started_at, status) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, string(run.Status))
	return err
}

func (s *PostgresStore) FinishCycleRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cycle_runs SET finished_at = $1, status = $2, listings_fetched = $3,
			listings_new = $4, listings_delivered = $5, source_errors = $6, store_errors = $7
		WHERE id = $8`,
		run.FinishedAt, string(run.Status), run.ListingsFetched,
		run.ListingsNew, run.ListingsDelivered, run.SourceErrors, run.StoreErrors, run.ID)
	return err
}

func (s *PostgresStore) OldestActiveListings(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT listing_id, source, COALESCE(address, ''), rooms, price_byn, price_usd, COALESCE(landlord, ''), url, first_seen_at, COALESCE(is_active, TRUE)
		FROM listings
		WHERE COALESCE(is_active, TRUE) AND COALESCE(last_checked_at, first_seen_at) < $1
		ORDER BY COALESCE(last_checked_at, first_seen_at)
		LIMIT $2`, checkedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.StoredListing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) TouchListing(ctx context.Context, listingID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET last_checked_at = $1 WHERE listing_id = $2`, at, listingID)
	return err
}

func (s *PostgresStore) MarkListingInactive(ctx context.Context, listingID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET is_active = FALSE, last_checked_at = $1 WHERE listing_id = $2`,
		time.Now().UTC(), listingID)
	return err
}

func (s *PostgresStore) PruneInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM deliveries WHERE listing_id IN (
			SELECT listing_id FROM listings
			WHERE NOT is_active AND last_checked_at < $1)`, cutoff); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM listings WHERE NOT is_active AND last_checked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), tx.Commit(ctx)
}

func scanPgListing(row pgx.Row) (*models.StoredListing, error) {
	var l models.StoredListing
	var landlord string
	err := row.Scan(&l.ID, &l.Source, &l.Address, &l.Rooms, &l.PriceBYN, &l.PriceUSD, &landlord, &l.URL, &l.FirstSeenAt, &l.IsActive)
	if err != nil {
		return nil, err
	}
	l.Landlord = models.Landlord(landlord)
	return &l, nil
}
