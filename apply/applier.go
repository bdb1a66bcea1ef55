// Package apply commits diff-engine output to authoritative state.
//
// The applier is the sole writer of vessels, price history, the diff-event
// audit log and the notification outbox. Every event commits in its own
// transaction keyed on (run, source, vessel, event type), so re-applying a
// run's diff is a no-op and a crash mid-run leaves each vessel either fully
// applied or untouched.
package apply

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/keelwatch/db"
	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
	"github.com/teranos/keelwatch/outbox"
	"github.com/teranos/keelwatch/vessel"
)

// timeNow is swapped in tests to pin removal timestamps
var timeNow = func() time.Time { return time.Now().UTC() }

// Applier applies diff events. Shadow is a strategy flag, not a parallel
// code path: shadow mode runs the identical apply logic and rolls back each
// transaction instead of committing, so parity with authoritative mode is
// guaranteed by construction.
type Applier struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	shadow bool
}

// NewApplier creates an applier. shadow suppresses all durable writes.
func NewApplier(sqlDB *sql.DB, logger *zap.SugaredLogger, shadow bool) *Applier {
	return &Applier{db: sqlDB, logger: logger, shadow: shadow}
}

// Shadow reports whether the applier suppresses durable writes
func (a *Applier) Shadow() bool {
	return a.shadow
}

// Result summarizes one apply pass
type Result struct {
	Applied    int `json:"applied"`    // events committed (or would-commit in shadow)
	Duplicates int `json:"duplicates"` // already-applied events skipped
	Notified   int `json:"notified"`   // outbox entries written
}

// Apply commits a batch of non-removal diff events, one transaction per
// event. Duplicate events (same run, vessel and type) are treated as
// success-without-effect. Removed events are rejected: removals go through
// ApplyRemovals so the gating invariants are checked in one place.
func (a *Applier) Apply(ctx context.Context, events []diff.Event) (*Result, error) {
	result := &Result{}

	for _, e := range events {
		if e.Type == diff.EventRemoved {
			return result, errors.NewInvariantViolation(
				"removed event for %s/%s reached Apply; removals must go through ApplyRemovals",
				e.Source, e.VesselKey)
		}

		applied, notified, err := a.applyOne(ctx, e)
		if err != nil {
			return result, errors.Wrapf(err, "failed to apply %s for %s/%s", e.Type, e.Source, e.VesselKey)
		}
		if applied {
			result.Applied++
		} else {
			result.Duplicates++
		}
		if notified {
			result.Notified++
		}
	}

	a.logger.Debugw("Diff batch applied",
		"events", len(events),
		"applied", result.Applied,
		"duplicates", result.Duplicates,
		"shadow", a.shadow)

	return result, nil
}

// ApplyRemovals transitions vessels to removed. Only a healthy reconcile
// run may do this; anything else is a contract violation and fails loudly
// rather than risk mass-deleting active listings.
func (a *Applier) ApplyRemovals(ctx context.Context, runID, source string, runType diff.RunType, healthy bool, keys []string) (*Result, error) {
	if runType != diff.RunReconcile {
		return nil, errors.NewInvariantViolation(
			"removal instruction from %s run %s; only reconcile runs may remove", runType, runID)
	}
	if !healthy {
		return nil, errors.Wrapf(errors.ErrUnhealthyRun,
			"removal instruction from unhealthy reconcile run %s", runID)
	}

	result := &Result{}
	for _, key := range keys {
		current, err := a.getVessel(ctx, source, key)
		if err != nil {
			return result, err
		}

		e := diff.RemovalEvent(runID, source, key, current, timeNow())
		applied, notified, err := a.applyOne(ctx, e)
		if err != nil {
			return result, errors.Wrapf(err, "failed to apply removal for %s/%s", source, key)
		}
		if applied {
			result.Applied++
			a.logger.Infow("Vessel removed",
				"source", source,
				"vessel_key", key,
				"run_id", runID,
				"shadow", a.shadow)
		} else {
			result.Duplicates++
		}
		if notified {
			result.Notified++
		}
	}

	return result, nil
}

// applyOne commits a single event atomically: audit row, vessel mutation,
// price history, outbox. Returns (applied, notified).
func (a *Applier) applyOne(ctx context.Context, e diff.Event) (bool, bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, errors.Wrap(err, "failed to begin apply transaction")
	}
	defer tx.Rollback()

	// The audit insert doubles as the idempotence guard: a duplicate key
	// means this exact event already committed.
	_, err = tx.Exec(`
		INSERT INTO diff_events (run_id, source, vessel_key, event_type, old_price, new_price, old_status, new_status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Source, e.VesselKey, e.Type, e.OldPrice, e.NewPrice, string(e.OldStatus), string(e.NewStatus), e.RecordedAt)
	if err != nil {
		if db.IsUniqueConstraint(err) {
			return false, false, nil
		}
		return false, false, errors.Wrap(err, "failed to record diff event")
	}

	if err := a.mutateVessel(tx, e); err != nil {
		return false, false, err
	}

	notified := false
	if e.Type.Notifies() {
		if err := outbox.AppendTx(tx, e); err != nil {
			return false, false, err
		}
		notified = true
	}

	if a.shadow {
		// Same logic, no durable effect.
		if err := tx.Rollback(); err != nil {
			return false, false, errors.Wrap(err, "failed to roll back shadow transaction")
		}
		return true, notified, nil
	}

	if err := tx.Commit(); err != nil {
		return false, false, errors.Wrap(err, "failed to commit apply transaction")
	}
	return true, notified, nil
}

func (a *Applier) mutateVessel(tx *sql.Tx, e diff.Event) error {
	switch e.Type {
	case diff.EventInserted, diff.EventPriceChanged, diff.EventSold, diff.EventUnchanged:
		v := &vessel.Vessel{
			Source:      e.Source,
			Key:         e.VesselKey,
			Title:       e.Title,
			URL:         e.URL,
			Price:       e.NewPrice,
			Currency:    e.Currency,
			Status:      e.NewStatus,
			FirstSeenAt: e.RecordedAt,
			LastSeenAt:  e.RecordedAt,
			UpdatedAt:   e.RecordedAt,
		}
		if err := vessel.UpsertTx(tx, v); err != nil {
			return err
		}
		if e.Type == diff.EventPriceChanged {
			return vessel.AppendPriceTx(tx, &vessel.PriceHistoryEntry{
				Source:     e.Source,
				VesselKey:  e.VesselKey,
				Price:      e.NewPrice,
				Currency:   e.Currency,
				RecordedAt: e.RecordedAt,
			})
		}
		return nil

	case diff.EventRemovalCandidate:
		// Audit only. Candidacy is tracker input, not a state change.
		return nil

	case diff.EventRemoved:
		return vessel.SetStatusTx(tx, e.Source, e.VesselKey, vessel.StatusRemoved, e.RecordedAt)

	default:
		return errors.AssertionFailedf("unknown diff event type %q", e.Type)
	}
}

func (a *Applier) getVessel(ctx context.Context, source, key string) (*vessel.Vessel, error) {
	var v vessel.Vessel
	err := a.db.QueryRowContext(ctx, `
		SELECT source, vessel_key, title, url, price, currency, status,
		       first_seen_at, last_seen_at, updated_at
		FROM vessels WHERE source = ? AND vessel_key = ?
	`, source, key).Scan(
		&v.Source, &v.Key, &v.Title, &v.URL, &v.Price, &v.Currency, &v.Status,
		&v.FirstSeenAt, &v.LastSeenAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("vessel %s/%s not found", source, key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load vessel for removal")
	}
	return &v, nil
}
