package vessel

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of authoritative vessel state
type Store struct {
	db *sql.DB
}

// NewStore creates a new vessel store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the vessel for (source, key), or errors.ErrNotFound
func (s *Store) Get(ctx context.Context, source, key string) (*Vessel, error) {
	query := `
		SELECT source, vessel_key, title, url, price, currency, status,
		       first_seen_at, last_seen_at, updated_at
		FROM vessels
		WHERE source = ? AND vessel_key = ?
	`

	v, err := scanVessel(s.db.QueryRowContext(ctx, query, source, key))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("vessel %s/%s not found", source, key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get vessel")
	}
	return v, nil
}

// MapBySource returns all vessels for a source keyed by vessel key.
// This is the authoritative snapshot the diff engine compares against.
func (s *Store) MapBySource(ctx context.Context, source string) (map[string]*Vessel, error) {
	query := `
		SELECT source, vessel_key, title, url, price, currency, status,
		       first_seen_at, last_seen_at, updated_at
		FROM vessels
		WHERE source = ?
	`

	rows, err := s.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query vessels")
	}
	defer rows.Close()

	vessels := make(map[string]*Vessel)
	for rows.Next() {
		v, err := scanVessel(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vessel")
		}
		vessels[v.Key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vessels")
	}

	return vessels, nil
}

// ListByStatus returns vessels for a source filtered by status
func (s *Store) ListByStatus(ctx context.Context, source string, status Status) ([]*Vessel, error) {
	query := `
		SELECT source, vessel_key, title, url, price, currency, status,
		       first_seen_at, last_seen_at, updated_at
		FROM vessels
		WHERE source = ? AND status = ?
		ORDER BY last_seen_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, source, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query vessels by status")
	}
	defer rows.Close()

	var vessels []*Vessel
	for rows.Next() {
		v, err := scanVessel(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vessel")
		}
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}

// PriceHistory returns the append-only price record for a vessel, oldest first
func (s *Store) PriceHistory(ctx context.Context, source, key string) ([]*PriceHistoryEntry, error) {
	query := `
		SELECT id, source, vessel_key, price, currency, recorded_at
		FROM price_history
		WHERE source = ? AND vessel_key = ?
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, source, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query price history")
	}
	defer rows.Close()

	var entries []*PriceHistoryEntry
	for rows.Next() {
		var e PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.VesselKey, &e.Price, &e.Currency, &e.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan price history entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// UpsertTx writes a vessel within the caller's transaction.
// first_seen_at is preserved on conflict; everything else reflects the
// latest applied state.
func UpsertTx(tx *sql.Tx, v *Vessel) error {
	query := `
		INSERT INTO vessels (
			source, vessel_key, title, url, price, currency, status,
			first_seen_at, last_seen_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, vessel_key) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			price = excluded.price,
			currency = excluded.currency,
			status = excluded.status,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at
	`

	_, err := tx.Exec(query,
		v.Source, v.Key, v.Title, v.URL, v.Price, v.Currency, v.Status,
		v.FirstSeenAt, v.LastSeenAt, v.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert vessel")
	}
	return nil
}

// SetStatusTx updates only a vessel's status within the caller's transaction
func SetStatusTx(tx *sql.Tx, source, key string, status Status, updatedAt time.Time) error {
	result, err := tx.Exec(`
		UPDATE vessels SET status = ?, updated_at = ?
		WHERE source = ? AND vessel_key = ?
	`, status, updatedAt, source, key)
	if err != nil {
		return errors.Wrap(err, "failed to update vessel status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFound("vessel %s/%s not found", source, key)
	}
	return nil
}

// AppendPriceTx appends one price history row within the caller's transaction
func AppendPriceTx(tx *sql.Tx, e *PriceHistoryEntry) error {
	_, err := tx.Exec(`
		INSERT INTO price_history (source, vessel_key, price, currency, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.Source, e.VesselKey, e.Price, e.Currency, e.RecordedAt)
	if err != nil {
		return errors.Wrap(err, "failed to append price history")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVessel(row rowScanner) (*Vessel, error) {
	var v Vessel
	err := row.Scan(
		&v.Source, &v.Key, &v.Title, &v.URL, &v.Price, &v.Currency, &v.Status,
		&v.FirstSeenAt, &v.LastSeenAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
