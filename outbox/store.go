package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of notification outbox entries
type Store struct {
	db *sql.DB
}

// NewStore creates a new outbox store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendTx writes one notification intent within the caller's transaction.
// Only the applier calls this, alongside the state change it describes.
func AppendTx(tx *sql.Tx, e diff.Event) error {
	payload, err := json.Marshal(NewPayload(e))
	if err != nil {
		return errors.Wrap(err, "failed to marshal outbox payload")
	}

	_, err = tx.Exec(`
		INSERT INTO notification_outbox (run_id, source, vessel_key, event_type, payload, dispatched, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, e.RunID, e.Source, e.VesselKey, e.Type, string(payload), e.RecordedAt)
	if err != nil {
		return errors.Wrap(err, "failed to append outbox entry")
	}
	return nil
}

// ListPending returns undispatched entries, oldest first
func (s *Store) ListPending(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source, vessel_key, event_type, payload, dispatched, created_at, dispatched_at
		FROM notification_outbox
		WHERE dispatched = 0
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pending outbox entries")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByRun returns all entries for a run, oldest first. Used for shadow
// parity checks and audit.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source, vessel_key, event_type, payload, dispatched, created_at, dispatched_at
		FROM notification_outbox
		WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query outbox entries by run")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkDispatched flags entries as delivered. Called by the external
// deliverer (or the CLI) after a successful send.
func (s *Store) MarkDispatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin dispatch transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range ids {
		result, err := tx.Exec(`
			UPDATE notification_outbox
			SET dispatched = 1, dispatched_at = ?
			WHERE id = ? AND dispatched = 0
		`, now, id)
		if err != nil {
			return errors.Wrapf(err, "failed to mark outbox entry %d dispatched", id)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to check dispatched rows")
		}
		if affected == 0 {
			return errors.NewNotFound("no pending outbox entry %d", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit dispatch")
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var payload string
		var dispatchedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.VesselKey, &e.EventType, &payload, &e.Dispatched, &e.CreatedAt, &dispatchedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan outbox entry")
		}
		e.Payload = []byte(payload)
		if dispatchedAt.Valid {
			e.DispatchedAt = &dispatchedAt.Time
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
