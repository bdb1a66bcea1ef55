package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
	kwtesting "github.com/teranos/keelwatch/internal/testing"
)

func appendEntry(t *testing.T, store *Store, e diff.Event) {
	t.Helper()
	tx, err := store.db.Begin()
	require.NoError(t, err)
	require.NoError(t, AppendTx(tx, e))
	require.NoError(t, tx.Commit())
}

func TestAppendAndListPending(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	appendEntry(t, store, diff.Event{
		RunID: "RUN_a", Source: "northport", VesselKey: "NP-001",
		Type: diff.EventPriceChanged, OldPrice: 50_000_000, NewPrice: 48_000_000,
		Currency: "EUR", RecordedAt: now,
	})
	appendEntry(t, store, diff.Event{
		RunID: "RUN_a", Source: "northport", VesselKey: "NP-002",
		Type: diff.EventSold, RecordedAt: now.Add(time.Second),
	})

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "NP-001", pending[0].VesselKey)
	assert.Equal(t, diff.EventPriceChanged, pending[0].EventType)
	assert.JSONEq(t, `{"old_price": 50000000, "new_price": 48000000, "currency": "EUR"}`,
		string(pending[0].Payload))
}

func TestMarkDispatched(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	appendEntry(t, store, diff.Event{
		RunID: "RUN_a", Source: "northport", VesselKey: "NP-001",
		Type: diff.EventInserted, RecordedAt: time.Now().UTC(),
	})

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkDispatched(ctx, []int64{pending[0].ID}))

	pending, err = store.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Dispatching twice is a not-found, and the failed batch rolls back
	err = store.MarkDispatched(ctx, []int64{1})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListByRun(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	appendEntry(t, store, diff.Event{
		RunID: "RUN_a", Source: "northport", VesselKey: "NP-001",
		Type: diff.EventInserted, RecordedAt: now,
	})
	appendEntry(t, store, diff.Event{
		RunID: "RUN_b", Source: "northport", VesselKey: "NP-002",
		Type: diff.EventRemoved, RecordedAt: now,
	})

	entries, err := store.ListByRun(ctx, "RUN_b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, diff.EventRemoved, entries[0].EventType)
}
