package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of miss counters and per-source health
type Store struct {
	db *sql.DB
}

// NewStore creates a new health store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadMisses returns the current miss counters for a source
func (s *Store) LoadMisses(ctx context.Context, source string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT vessel_key, misses FROM miss_counters WHERE source = ?", source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query miss counters")
	}
	defer rows.Close()

	misses := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan miss counter")
		}
		misses[key] = count
	}
	return misses, rows.Err()
}

// ReplaceMisses atomically replaces the source's counter state with the
// tracker's output. Full replacement keeps persistence trivially consistent
// with the pure Apply result.
func (s *Store) ReplaceMisses(ctx context.Context, source, runID string, misses map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin miss counter transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM miss_counters WHERE source = ?", source); err != nil {
		return errors.Wrap(err, "failed to clear miss counters")
	}

	now := time.Now().UTC()
	for key, count := range misses {
		_, err := tx.Exec(`
			INSERT INTO miss_counters (source, vessel_key, misses, last_missed_run_id, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, source, key, count, runID, now)
		if err != nil {
			return errors.Wrapf(err, "failed to write miss counter for %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit miss counters")
	}
	return nil
}

// RecordReconcile updates the per-source health row after a reconcile run.
// A healthy run extends the consecutive streak; an unhealthy one resets it.
func (s *Store) RecordReconcile(ctx context.Context, source string, healthy bool, at time.Time) error {
	var query string
	if healthy {
		query = `
			INSERT INTO source_health (source, consecutive_healthy_reconciles, last_healthy_at, updated_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT (source) DO UPDATE SET
				consecutive_healthy_reconciles = consecutive_healthy_reconciles + 1,
				last_healthy_at = excluded.last_healthy_at,
				updated_at = excluded.updated_at
		`
	} else {
		query = `
			INSERT INTO source_health (source, consecutive_healthy_reconciles, last_healthy_at, updated_at)
			VALUES (?, 0, NULL, ?)
			ON CONFLICT (source) DO UPDATE SET
				consecutive_healthy_reconciles = 0,
				updated_at = excluded.updated_at
		`
	}

	var err error
	if healthy {
		_, err = s.db.ExecContext(ctx, query, source, at, at)
	} else {
		_, err = s.db.ExecContext(ctx, query, source, at)
	}
	if err != nil {
		return errors.Wrap(err, "failed to record reconcile health")
	}
	return nil
}

// Get returns the health row for a source, or errors.ErrNotFound
func (s *Store) Get(ctx context.Context, source string) (*SourceHealth, error) {
	var h SourceHealth
	var lastHealthy sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT source, consecutive_healthy_reconciles, last_healthy_at, updated_at
		FROM source_health WHERE source = ?
	`, source).Scan(&h.Source, &h.ConsecutiveHealthyReconciles, &lastHealthy, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("no health record for source %s", source)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get source health")
	}
	if lastHealthy.Valid {
		h.LastHealthyAt = &lastHealthy.Time
	}
	return &h, nil
}
