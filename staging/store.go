package staging

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of run-scoped staged observations
type Store struct {
	db *sql.DB
}

// NewStore creates a new staging store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// StageListings appends a batch of listing observations for a run.
// Writes are append-only per run; re-staging the same vessel in the same run
// replaces the earlier row (last observation wins within a run).
func (s *Store) StageListings(ctx context.Context, runID, source string, obs []ListingObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin staging transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO staged_listings (run_id, source, vessel_key, title, url, price, currency, status, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, source, vessel_key) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			price = excluded.price,
			currency = excluded.currency,
			status = excluded.status,
			observed_at = excluded.observed_at
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare staging insert")
	}
	defer stmt.Close()

	for _, o := range obs {
		if o.VesselKey == "" {
			return errors.New("staged observation missing vessel key")
		}
		if _, err := stmt.Exec(runID, source, o.VesselKey, o.Title, o.URL, o.Price, o.Currency, o.Status, o.ObservedAt); err != nil {
			return errors.Wrapf(err, "failed to stage listing %s", o.VesselKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit staged listings")
	}
	return nil
}

// StageDetails appends a batch of detail observations for a run
func (s *Store) StageDetails(ctx context.Context, runID, source string, obs []DetailObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin staging transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO staged_details (run_id, source, vessel_key, title, url, price, currency, status, payload, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, source, vessel_key) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			price = excluded.price,
			currency = excluded.currency,
			status = excluded.status,
			payload = excluded.payload,
			observed_at = excluded.observed_at
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare detail staging insert")
	}
	defer stmt.Close()

	for _, o := range obs {
		if o.VesselKey == "" {
			return errors.New("staged detail missing vessel key")
		}
		payload := sql.NullString{String: string(o.Payload), Valid: len(o.Payload) > 0}
		if _, err := stmt.Exec(runID, source, o.VesselKey, o.Title, o.URL, o.Price, o.Currency, o.Status, payload, o.ObservedAt); err != nil {
			return errors.Wrapf(err, "failed to stage detail %s", o.VesselKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit staged details")
	}
	return nil
}

// ReadListings returns the staged listing observations for (run, source)
func (s *Store) ReadListings(ctx context.Context, runID, source string) ([]ListingObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vessel_key, title, url, price, currency, status, observed_at
		FROM staged_listings
		WHERE run_id = ? AND source = ?
		ORDER BY vessel_key
	`, runID, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query staged listings")
	}
	defer rows.Close()

	var obs []ListingObservation
	for rows.Next() {
		var o ListingObservation
		if err := rows.Scan(&o.VesselKey, &o.Title, &o.URL, &o.Price, &o.Currency, &o.Status, &o.ObservedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan staged listing")
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// ReadDetails returns the staged detail observations for (run, source)
func (s *Store) ReadDetails(ctx context.Context, runID, source string) ([]DetailObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vessel_key, title, url, price, currency, status, payload, observed_at
		FROM staged_details
		WHERE run_id = ? AND source = ?
		ORDER BY vessel_key
	`, runID, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query staged details")
	}
	defer rows.Close()

	var obs []DetailObservation
	for rows.Next() {
		var o DetailObservation
		var payload sql.NullString
		if err := rows.Scan(&o.VesselKey, &o.Title, &o.URL, &o.Price, &o.Currency, &o.Status, &payload, &o.ObservedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan staged detail")
		}
		if payload.Valid {
			o.Payload = []byte(payload.String)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// Purge deletes staged rows older than the cutoff. Advisory cleanup only;
// correctness never depends on staged rows outliving their run.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"staged_listings", "staged_details"} {
		result, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE observed_at < ?", olderThan)
		if err != nil {
			return total, errors.Wrapf(err, "failed to purge %s", table)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, errors.Wrap(err, "failed to count purged rows")
		}
		total += n
	}
	return total, nil
}
