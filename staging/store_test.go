package staging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kwtesting "github.com/teranos/keelwatch/internal/testing"
)

func TestStageAndReadListings(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	obs := []ListingObservation{
		{VesselKey: "NP-002", Title: "Najad 390", Price: 21_000_000, Currency: "EUR", ObservedAt: now},
		{VesselKey: "NP-001", Title: "Hallberg-Rassy 40", Price: 50_000_000, Currency: "EUR", ObservedAt: now},
	}
	require.NoError(t, store.StageListings(ctx, "RUN_a", "northport", obs))

	got, err := store.ReadListings(ctx, "RUN_a", "northport")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by vessel key
	assert.Equal(t, "NP-001", got[0].VesselKey)
	assert.Equal(t, "NP-002", got[1].VesselKey)
}

func TestRunIsolation(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.StageListings(ctx, "RUN_a", "northport",
		[]ListingObservation{{VesselKey: "NP-001", Price: 100, ObservedAt: now}}))
	require.NoError(t, store.StageListings(ctx, "RUN_b", "northport",
		[]ListingObservation{{VesselKey: "NP-002", Price: 200, ObservedAt: now}}))

	got, err := store.ReadListings(ctx, "RUN_a", "northport")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NP-001", got[0].VesselKey)
}

func TestRestageReplacesWithinRun(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.StageListings(ctx, "RUN_a", "northport",
		[]ListingObservation{{VesselKey: "NP-001", Price: 100, ObservedAt: now}}))
	require.NoError(t, store.StageListings(ctx, "RUN_a", "northport",
		[]ListingObservation{{VesselKey: "NP-001", Price: 90, ObservedAt: now.Add(time.Minute)}}))

	got, err := store.ReadListings(ctx, "RUN_a", "northport")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(90), got[0].Price)
}

func TestStageRejectsMissingKey(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)

	err := store.StageListings(context.Background(), "RUN_a", "northport",
		[]ListingObservation{{Price: 100, ObservedAt: time.Now()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vessel key")
}

func TestStageDetailsRoundTrip(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.StageDetails(ctx, "RUN_a", "northport", []DetailObservation{{
		VesselKey: "NP-001",
		Price:     48_000_000,
		Currency:  "EUR",
		Status:    "sold",
		Payload:   []byte(`{"engine_hours": 1200}`),
		ObservedAt: now,
	}}))

	got, err := store.ReadDetails(ctx, "RUN_a", "northport")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sold", got[0].Status)
	assert.JSONEq(t, `{"engine_hours": 1200}`, string(got[0].Payload))

	listing := got[0].Listing()
	assert.Equal(t, "NP-001", listing.VesselKey)
	assert.True(t, listing.Sold())
}

func TestPurge(t *testing.T) {
	db := kwtesting.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-14 * 24 * time.Hour)
	fresh := time.Now().UTC()

	require.NoError(t, store.StageListings(ctx, "RUN_old", "northport",
		[]ListingObservation{{VesselKey: "NP-001", ObservedAt: old}}))
	require.NoError(t, store.StageListings(ctx, "RUN_new", "northport",
		[]ListingObservation{{VesselKey: "NP-002", ObservedAt: fresh}}))

	purged, err := store.Purge(ctx, fresh.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	got, err := store.ReadListings(ctx, "RUN_new", "northport")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
