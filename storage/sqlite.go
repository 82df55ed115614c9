package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Pererenchina/home-monitor-bot/filters"
	"github.com/Pererenchina/home-monitor-bot/models"
)

// SQLiteStore is the default Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		listing_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		address TEXT,
		rooms INTEGER,
		price_byn REAL,
		price_usd REAL,
		landlord TEXT,
		url TEXT NOT NULL,
		first_seen_at DATETIME NOT NULL,
		last_checked_at DATETIME,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		listing_id TEXT NOT NULL,
		recipient_id INTEGER NOT NULL,
		sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (listing_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS filter_specs (
		id INTEGER PRIMARY KEY,
		recipient_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		spec JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT,
		listings_fetched INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		listings_delivered INTEGER DEFAULT 0,
		source_errors INTEGER DEFAULT 0,
		store_errors INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active, last_checked_at);
	CREATE INDEX IF NOT EXISTS idx_filter_specs_recipient ON filter_specs(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_filter_specs_active ON filter_specs(active);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON cycle_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Observe inserts the listing if its id has never been seen. The insert is
// a single atomic statement, so concurrent cycles cannot race the
// read-check-write; first-write-wins because a conflicting id is ignored
// without touching the stored row.
func (s *SQLiteStore) Observe(ctx context.Context, l models.Listing) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (listing_id, source, address, rooms, price_byn, price_usd, landlord, url, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO NOTHING`,
		l.ID, l.Source, l.Address, l.Rooms, l.PriceBYN, l.PriceUSD, string(l.Landlord), l.URL, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*models.StoredListing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT listing_id, source, address, rooms, price_byn, price_usd, landlord, url, first_seen_at, COALESCE(is_active, TRUE)
		FROM listings WHERE listing_id = ?`, listingID)
	return scanListing(row)
}

func (s *SQLiteStore) HasBeenSentTo(ctx context.Context, listingID string, recipientID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM deliveries WHERE listing_id = ? AND recipient_id = ?`,
		listingID, recipientID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) MarkSentTo(ctx context.Context, listingID string, recipientID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (listing_id, recipient_id) VALUES (?, ?)
		ON CONFLICT(listing_id, recipient_id) DO NOTHING`,
		listingID, recipientID)
	return err
}

func (s *SQLiteStore) SaveFilterSpec(ctx context.Context, spec *filters.Spec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	blob, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	if spec.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO filter_specs (recipient_id, name, active, spec, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			spec.RecipientID, spec.Name, spec.Active, string(blob), spec.CreatedAt, spec.UpdatedAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		spec.ID = id
		// Re-marshal so the stored blob carries the assigned id.
		blob, _ = json.Marshal(spec)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE filter_specs SET recipient_id = ?, name = ?, active = ?, spec = ?, updated_at = ?
		WHERE id = ?`,
		spec.RecipientID, spec.Name, spec.Active, string(blob), spec.UpdatedAt, spec.ID)
	return err
}

func (s *SQLiteStore) DeleteFilterSpec(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filter_specs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) SetFilterSpecActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE filter_specs SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) FilterSpecsByRecipient(ctx context.Context, recipientID int64) ([]filters.Spec, error) {
	return s.querySpecs(ctx, `
		SELECT id, recipient_id, name, active, spec FROM filter_specs
		WHERE recipient_id = ? ORDER BY id`, recipientID)
}

func (s *SQLiteStore) ActiveFilterSpecs(ctx context.Context) ([]filters.Spec, error) {
	return s.querySpecs(ctx, `
		SELECT id, recipient_id, name, active, spec FROM filter_specs
		WHERE active ORDER BY id`)
}

func (s *SQLiteStore) querySpecs(ctx context.Context, query string, args ...any) ([]filters.Spec, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []filters.Spec
	for rows.Next() {
		var (
			spec filters.Spec
			blob string
		)
		var id, recipientID int64
		var name string
		var active bool
		if err := rows.Scan(&id, &recipientID, &name, &active, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &spec); err != nil {
			return nil, err
		}
		// Columns win over the blob: the front-end may toggle active
		// without rewriting the JSON.
		spec.ID = id
		spec.RecipientID = recipientID
		spec.Name = name
		spec.Active = active
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func (s *SQLiteStore) CreateCycleRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID.String(), run.StartedAt, string(run.Status))
	return err
}

func (s *SQLiteStore) FinishCycleRun(ctx context.Context, run *models.CycleRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cycle_runs SET finished_at = ?, status = ?, listings_fetched = ?,
			listings_new = ?, listings_delivered = ?, source_errors = ?, store_errors = ?
		WHERE id = ?`,
		run.FinishedAt, string(run.Status), run.ListingsFetched,
		run.ListingsNew, run.ListingsDelivered, run.SourceErrors, run.StoreErrors, run.ID.String())
	return err
}

func (s *SQLiteStore) OldestActiveListings(ctx context.Context, checkedBefore time.Time, limit int) ([]models.StoredListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_id, source, address, rooms, price_byn, price_usd, landlord, url, first_seen_at, COALESCE(is_active, TRUE)
		FROM listings
		WHERE COALESCE(is_active, TRUE) AND COALESCE(last_checked_at, first_seen_at) < ?
		ORDER BY COALESCE(last_checked_at, first_seen_at)
		LIMIT ?`, checkedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.StoredListing
	for rows.Next() {
		l, err := scanListingRows(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) TouchListing(ctx context.Context, listingID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE listings SET last_checked_at = ? WHERE listing_id = ?`, at, listingID)
	return err
}

func (s *SQLiteStore) MarkListingInactive(ctx context.Context, listingID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE listings SET is_active = FALSE, last_checked_at = ? WHERE listing_id = ?`,
		time.Now().UTC(), listingID)
	return err
}

// PruneInactiveBefore removes listings already marked inactive whose last
// check predates the cutoff, along with their delivery marks. Active rows
// are never pruned, so the at-most-once delivery contract holds for the
// lifetime of every live listing.
func (s *SQLiteStore) PruneInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM deliveries WHERE listing_id IN (
			SELECT listing_id FROM listings
			WHERE NOT is_active AND last_checked_at < ?)`, cutoff); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM listings WHERE NOT is_active AND last_checked_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	return n, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row *sql.Row) (*models.StoredListing, error) {
	l, err := scanListingRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func scanListingRows(row rowScanner) (*models.StoredListing, error) {
	var (
		l        models.StoredListing
		address  sql.NullString
		rooms    sql.NullInt64
		byn, usd sql.NullFloat64
		landlord sql.NullString
	)
	err := row.Scan(&l.ID, &l.Source, &address, &rooms, &byn, &usd, &landlord, &l.URL, &l.FirstSeenAt, &l.IsActive)
	if err != nil {
		return nil, err
	}
	l.Address = address.String
	if rooms.Valid {
		v := int(rooms.Int64)
		l.Rooms = &v
	}
	if byn.Valid {
		v := byn.Float64
		l.PriceBYN = &v
	}
	if usd.Valid {
		v := usd.Float64
		l.PriceUSD = &v
	}
	l.Landlord = models.Landlord(landlord.String)
	return &l, nil
}
