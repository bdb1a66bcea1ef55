package detailq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/keelwatch/errors"
	kwtesting "github.com/teranos/keelwatch/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(kwtesting.CreateTestDB(t), 3)
}

func enqueue(t *testing.T, store *Store, keys ...string) {
	t.Helper()
	candidates := make([]Candidate, len(keys))
	for i, key := range keys {
		candidates[i] = Candidate{VesselKey: key, Reason: "inserted"}
	}
	n, err := store.EnqueueCandidates(context.Background(), "northport", candidates)
	require.NoError(t, err)
	require.Equal(t, len(keys), n)
}

func TestEnqueueSkipsActiveDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")

	// Same vessel with an active job: no-op
	n, err := store.EnqueueCandidates(ctx, "northport", []Candidate{{VesselKey: "NP-001", Reason: "price_changed"}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	// Finished jobs do not block re-enqueueing
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, store.Complete(ctx, jobs[0].ID))

	n, err = store.EnqueueCandidates(ctx, "northport", []Candidate{{VesselKey: "NP-001", Reason: "price_changed"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClaimLeasesJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001", "NP-002", "NP-003")

	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, JobStatusLeased, job.Status)
		assert.Equal(t, "w1", job.LeasedBy)
		require.NotNil(t, job.LeaseExpiresAt)
	}

	// Oldest-first claim order
	assert.Equal(t, "NP-001", jobs[0].VesselKey)

	// Second claimer only sees the remainder
	jobs, err = store.ClaimJobs(ctx, "northport", "w2", 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "NP-003", jobs[0].VesselKey)
}

func TestClaimReclaimsExpiredLeases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")

	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, -time.Second) // already expired
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	jobs, err = store.ClaimJobs(ctx, "northport", "w2", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "w2", jobs[0].LeasedBy)
}

func TestClaimExclusivityUnderConcurrency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = NewJobID() // unique vessel keys
	}
	enqueue(t, store, keys...)

	const claimers = 8
	var mu sync.Mutex
	var wg sync.WaitGroup
	claimed := make(map[string]string) // job id -> worker

	for w := 0; w < claimers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			workerID := NewJobID()
			for {
				jobs, err := store.ClaimJobs(ctx, "northport", workerID, 3, time.Minute)
				require.NoError(t, err)
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, job := range jobs {
					prev, dup := claimed[job.ID]
					assert.False(t, dup, "job %s claimed by both %s and %s", job.ID, prev, workerID)
					claimed[job.ID] = workerID
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	// Union of claims equals exactly the available pending set
	assert.Len(t, claimed, len(keys))
}

func TestCompleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, store.Complete(ctx, jobs[0].ID))
	require.NoError(t, store.Complete(ctx, jobs[0].ID))

	job, err := store.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, job.Status)
}

func TestFailRetryableReturnsToPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, jobs[0].ID, errors.New("timeout"), true))

	job, err := store.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "timeout", job.Error)
	assert.Empty(t, job.LeasedBy)
}

func TestFailExhaustedRetriesGoesDead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")

	var jobID string
	for i := 0; i < 3; i++ {
		jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, jobs, 1, "attempt %d", i)
		jobID = jobs[0].ID
		require.NoError(t, store.Fail(ctx, jobID, errors.New("still broken"), true))
	}

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDead, job.Status)
	assert.Equal(t, 3, job.RetryCount)

	// Dead jobs are not claimable
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFailNonRetryableGoesDeadImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, jobs[0].ID, errors.New("listing page gone"), false))

	job, err := store.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDead, job.Status)
}

func TestExpireStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")

	n, err := store.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.ExpireStale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	dead := JobStatusDead
	jobs, err := store.ListJobs(ctx, &dead, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "exceeded max queue age", jobs[0].Error)
}

func TestRetryDead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001")
	jobs, err := store.ClaimJobs(ctx, "northport", "w1", 1, time.Minute)
	require.NoError(t, err)
	jobID := jobs[0].ID

	require.NoError(t, store.Fail(ctx, jobID, errors.New("gone"), false))
	require.NoError(t, store.RetryDead(ctx, jobID))

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Zero(t, job.RetryCount)

	// Only dead jobs can be retried this way
	err = store.RetryDead(ctx, jobID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestReleaseOrphanedLeases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueue(t, store, "NP-001", "NP-002")
	_, err := store.ClaimJobs(ctx, "northport", "w1", 2, time.Hour)
	require.NoError(t, err)

	released, err := store.ReleaseOrphanedLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Zero(t, stats.Leased)
}
