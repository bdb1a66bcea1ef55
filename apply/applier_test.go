package apply

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
	kwtesting "github.com/teranos/keelwatch/internal/testing"
	"github.com/teranos/keelwatch/outbox"
	"github.com/teranos/keelwatch/vessel"
)

var recordedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *sql.DB
	applier *Applier
	vessels *vessel.Store
	outbox  *outbox.Store
}

func newFixture(t *testing.T, shadow bool) *fixture {
	t.Helper()
	db := kwtesting.CreateTestDB(t)
	return &fixture{
		db:      db,
		applier: NewApplier(db, zap.NewNop().Sugar(), shadow),
		vessels: vessel.NewStore(db),
		outbox:  outbox.NewStore(db),
	}
}

func insertedEvent(key string, price int64) diff.Event {
	return diff.Event{
		RunID: "RUN_a", Source: "northport", VesselKey: key,
		Type: diff.EventInserted, NewPrice: price, NewStatus: vessel.StatusActive,
		Currency: "EUR", Title: "Hallberg-Rassy 40", RecordedAt: recordedAt,
	}
}

func TestApplyInserted(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	result, err := f.applier.Apply(ctx, []diff.Event{insertedEvent("NP-001", 50_000_000)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Notified)

	v, err := f.vessels.Get(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Equal(t, vessel.StatusActive, v.Status)
	assert.Equal(t, int64(50_000_000), v.Price)

	// Inserted notifies but writes no price history
	history, err := f.vessels.PriceHistory(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Empty(t, history)

	pending, err := f.outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, diff.EventInserted, pending[0].EventType)
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	events := []diff.Event{insertedEvent("NP-001", 50_000_000)}

	first, err := f.applier.Apply(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Applied)

	// Retried orchestrator step applies the same run's diff again
	second, err := f.applier.Apply(ctx, events)
	require.NoError(t, err)
	assert.Zero(t, second.Applied)
	assert.Equal(t, 1, second.Duplicates)
	assert.Zero(t, second.Notified)

	pending, err := f.outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	history, err := f.vessels.PriceHistory(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyUnchangedKeepsQuiet(t *testing.T) {
	// Scenario: a vessel seen unchanged across consecutive detect runs
	// produces no notifications and no price history.
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.applier.Apply(ctx, []diff.Event{insertedEvent("NP-001", 50_000_000)})
	require.NoError(t, err)

	for _, runID := range []string{"RUN_b", "RUN_c", "RUN_d"} {
		result, err := f.applier.Apply(ctx, []diff.Event{{
			RunID: runID, Source: "northport", VesselKey: "NP-001",
			Type: diff.EventUnchanged, OldPrice: 50_000_000, NewPrice: 50_000_000,
			OldStatus: vessel.StatusActive, NewStatus: vessel.StatusActive,
			Currency: "EUR", RecordedAt: recordedAt.Add(time.Hour),
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Applied)
		assert.Zero(t, result.Notified)
	}

	history, err := f.vessels.PriceHistory(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Empty(t, history)

	pending, err := f.outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1) // only the initial inserted notification
}

func TestApplyPriceChanged(t *testing.T) {
	// Scenario: a price drop produces one price-history row and one
	// notification.
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.applier.Apply(ctx, []diff.Event{insertedEvent("NP-001", 50_000_000)})
	require.NoError(t, err)

	result, err := f.applier.Apply(ctx, []diff.Event{{
		RunID: "RUN_b", Source: "northport", VesselKey: "NP-001",
		Type: diff.EventPriceChanged, OldPrice: 50_000_000, NewPrice: 48_000_000,
		OldStatus: vessel.StatusActive, NewStatus: vessel.StatusActive,
		Currency: "EUR", RecordedAt: recordedAt.Add(time.Hour),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Notified)

	v, err := f.vessels.Get(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Equal(t, int64(48_000_000), v.Price)

	history, err := f.vessels.PriceHistory(ctx, "northport", "NP-001")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(48_000_000), history[0].Price)
}

func TestApplyRejectsRemovedEvents(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.applier.Apply(context.Background(), []diff.Event{{
		RunID: "RUN_a", Source: "northport", VesselKey: "NP-001",
		Type: diff.EventRemoved, NewStatus: vessel.StatusRemoved, RecordedAt: recordedAt,
	}})
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))
}

func TestApplyRemovals(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.applier.Apply(ctx, []diff.Event{insertedEvent("NP-001", 50_000_000)})
	require.NoError(t, err)

	result, err := f.applier.ApplyRemovals(ctx, "RUN_r", "northport", diff.RunReconcile, true, []string{"NP-001"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Notified)

	v, err := f.vessels.Get(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Equal(t, vessel.StatusRemoved, v.Status)

	entries, err := f.outbox.ListByRun(ctx, "RUN_r")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, diff.EventRemoved, entries[0].EventType)

	// Re-applying the same removal is a no-op
	again, err := f.applier.ApplyRemovals(ctx, "RUN_r", "northport", diff.RunReconcile, true, []string{"NP-001"})
	require.NoError(t, err)
	assert.Zero(t, again.Applied)
	assert.Equal(t, 1, again.Duplicates)
}

func TestApplyRemovalsGating(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// Non-reconcile run types are contract violations
	for _, runType := range []diff.RunType{diff.RunDetect, diff.RunDetailWorker} {
		_, err := f.applier.ApplyRemovals(ctx, "RUN_x", "northport", runType, true, []string{"NP-001"})
		require.Error(t, err, "run type %s", runType)
		assert.True(t, errors.IsInvariantViolation(err))
	}

	// An unhealthy reconcile run may not remove
	_, err := f.applier.ApplyRemovals(ctx, "RUN_x", "northport", diff.RunReconcile, false, []string{"NP-001"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnhealthyRun))
}

func TestShadowModeSuppressesAllWrites(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	result, err := f.applier.Apply(ctx, []diff.Event{
		insertedEvent("NP-001", 50_000_000),
		{
			RunID: "RUN_a", Source: "northport", VesselKey: "NP-002",
			Type: diff.EventPriceChanged, OldPrice: 100, NewPrice: 90,
			NewStatus: vessel.StatusActive, Currency: "EUR", RecordedAt: recordedAt,
		},
	})
	require.NoError(t, err)

	// Same counts a live applier would report
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 2, result.Notified)

	// Nothing durable
	_, err = f.vessels.Get(ctx, "northport", "NP-001")
	assert.True(t, errors.IsNotFound(err))

	pending, err := f.outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestShadowRemovalsLeaveVesselActive(t *testing.T) {
	live := newFixture(t, false)
	ctx := context.Background()

	_, err := live.applier.Apply(ctx, []diff.Event{insertedEvent("NP-001", 50_000_000)})
	require.NoError(t, err)

	shadow := NewApplier(live.db, zap.NewNop().Sugar(), true)
	result, err := shadow.ApplyRemovals(ctx, "RUN_r", "northport", diff.RunReconcile, true, []string{"NP-001"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	v, err := live.vessels.Get(ctx, "northport", "NP-001")
	require.NoError(t, err)
	assert.Equal(t, vessel.StatusActive, v.Status)
}
