package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of the run ledger
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a running ledger row for a freshly started run
func (s *Store) Create(ctx context.Context, r *Run) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run sources")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_type, mode, sources, status, started_at)
		VALUES (?, ?, ?, ?, 'running', ?)
	`, r.ID, r.Type, r.Mode, string(sources), r.StartedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// Finalize records a run's terminal status. A run is finalized exactly
// once; finalizing an already-finalized run is a contract violation.
func (s *Store) Finalize(ctx context.Context, r *Run) error {
	if r.Status == StatusRunning {
		return errors.NewInvariantViolation("cannot finalize run %s with non-terminal status %s", r.ID, r.Status)
	}

	healthJSON, err := json.Marshal(r.SourceHealth)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run source health")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, source_health = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = 'running'
	`, r.Status, string(healthJSON), nullString(r.Error), now, r.ID)
	if err != nil {
		return errors.Wrap(err, "failed to finalize run")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check finalized rows")
	}
	if affected == 0 {
		return errors.NewInvariantViolation("run %s is not running; already finalized?", r.ID)
	}

	r.FinishedAt = &now
	return nil
}

// Get returns a run by id, or errors.ErrNotFound
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_type, mode, sources, status, source_health, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run %s not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return r, nil
}

// List returns recent runs, newest first, optionally filtered by type
func (s *Store) List(ctx context.Context, runType *diff.RunType, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, run_type, mode, sources, status, source_health, error, started_at, finished_at
		FROM runs
	`
	args := []interface{}{}
	if runType != nil {
		query += " WHERE run_type = ?"
		args = append(args, *runType)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PurgeOld deletes finalized run rows older than the cutoff
func (s *Store) PurgeOld(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE status != 'running' AND started_at < ?
	`, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge old runs")
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var sources string
	var healthJSON, runErr sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Type, &r.Mode, &sources, &r.Status, &healthJSON, &runErr, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run sources")
	}
	if healthJSON.Valid && healthJSON.String != "" {
		if err := json.Unmarshal([]byte(healthJSON.String), &r.SourceHealth); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal run source health")
		}
	}
	r.Error = runErr.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
