package detailq

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/keelwatch/db"
	"github.com/teranos/keelwatch/errors"
)

// Store handles persistence of detail queue jobs
type Store struct {
	db         *sql.DB
	maxRetries int
}

// NewStore creates a new detail queue store
func NewStore(sqlDB *sql.DB, maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{db: sqlDB, maxRetries: maxRetries}
}

// EnqueueCandidates inserts pending jobs for vessels that need a detail
// refresh. A vessel with an active (pending or leased) job is skipped: the
// partial unique index turns the duplicate into a no-op.
// Returns the number of jobs actually enqueued.
func (s *Store) EnqueueCandidates(ctx context.Context, source string, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin enqueue transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detail_queue_jobs (id, source, vessel_key, reason, status, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?)
		ON CONFLICT (source, vessel_key) WHERE status IN ('pending', 'leased') DO NOTHING
	`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare enqueue insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	enqueued := 0
	for _, c := range candidates {
		if c.VesselKey == "" {
			return enqueued, errors.New("candidate missing vessel key")
		}
		result, err := stmt.Exec(NewJobID(), source, c.VesselKey, c.Reason, s.maxRetries, now, now)
		if err != nil {
			return enqueued, errors.Wrapf(err, "failed to enqueue candidate %s", c.VesselKey)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return enqueued, errors.Wrap(err, "failed to count enqueued rows")
		}
		enqueued += int(n)
	}

	if err := tx.Commit(); err != nil {
		return enqueued, errors.Wrap(err, "failed to commit enqueue")
	}
	return enqueued, nil
}

// ClaimJobs atomically leases up to limit claimable jobs for a worker.
//
// Claimable means pending, or leased with an expired lease (implicit
// reclamation). The claim is a single UPDATE so concurrent callers can
// never observe the same job as claimable: SQLite serializes writers and
// the statement both selects and transitions the rows.
func (s *Store) ClaimJobs(ctx context.Context, source, workerID string, limit int, leaseDuration time.Duration) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	expiry := now.Add(leaseDuration)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'leased',
		    leased_by = ?,
		    lease_expires_at = ?,
		    updated_at = ?
		WHERE id IN (
			SELECT id FROM detail_queue_jobs
			WHERE source = ?
			  AND (status = 'pending' OR (status = 'leased' AND lease_expires_at <= ?))
			ORDER BY created_at, id
			LIMIT ?
		)
		RETURNING id, source, vessel_key, reason, status, retry_count, max_retries,
		          leased_by, lease_expires_at, error, created_at, updated_at
	`, workerID, expiry, now, source, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan claimed job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Complete marks a job done. Idempotent: completing an already-done job is
// a no-op, not an error.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'done', leased_by = NULL, lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('leased', 'pending', 'done')
	`, time.Now().UTC(), jobID)
	if err != nil {
		return errors.Wrap(err, "failed to complete job")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check completed rows")
	}
	if affected == 0 {
		return errors.NewNotFound("job %s not found", jobID)
	}
	return nil
}

// Fail records a job failure. Retryable failures with budget remaining
// return the job to pending for re-claim; everything else goes dead.
func (s *Store) Fail(ctx context.Context, jobID string, jobErr error, retryable bool) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	errMsg := ""
	if jobErr != nil {
		errMsg = jobErr.Error()
	}

	now := time.Now().UTC()
	if retryable && job.RetryCount+1 < job.MaxRetries {
		_, err = s.db.ExecContext(ctx, `
			UPDATE detail_queue_jobs
			SET status = 'pending', retry_count = retry_count + 1,
			    leased_by = NULL, lease_expires_at = NULL, error = ?, updated_at = ?
			WHERE id = ?
		`, errMsg, now, jobID)
		if err != nil {
			return errors.Wrap(err, "failed to requeue job")
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'dead', retry_count = retry_count + 1,
		    leased_by = NULL, lease_expires_at = NULL, error = ?, updated_at = ?
		WHERE id = ?
	`, errMsg, now, jobID)
	if err != nil {
		return errors.Wrap(err, "failed to dead-letter job")
	}
	return nil
}

// ExpireStale dead-letters active jobs older than maxAge. Lease expiry alone
// is handled by ClaimJobs; this catches jobs that keep failing into pending
// without ever exhausting retries.
func (s *Store) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.ExecContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'dead', leased_by = NULL, lease_expires_at = NULL,
		    error = 'exceeded max queue age', updated_at = ?
		WHERE status IN ('pending', 'leased') AND created_at < ?
	`, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire stale jobs")
	}
	return result.RowsAffected()
}

// RetryDead returns a dead job to pending with a fresh retry budget
func (s *Store) RetryDead(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'pending', retry_count = 0, error = NULL, updated_at = ?
		WHERE id = ? AND status = 'dead'
	`, time.Now().UTC(), jobID)
	if err != nil {
		return errors.Wrap(err, "failed to retry dead job")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check retried rows")
	}
	if affected == 0 {
		return errors.NewNotFound("no dead job %s", jobID)
	}
	return nil
}

// GetJob returns a job by id, or errors.ErrNotFound
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, vessel_key, reason, status, retry_count, max_retries,
		       leased_by, lease_expires_at, error, created_at, updated_at
		FROM detail_queue_jobs WHERE id = ?
	`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status, newest first
func (s *Store) ListJobs(ctx context.Context, status *JobStatus, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, source, vessel_key, reason, status, retry_count, max_retries,
		       leased_by, lease_expires_at, error, created_at, updated_at
		FROM detail_queue_jobs
	`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetStats returns queue depth per status
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM detail_queue_jobs GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query queue stats")
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan queue stats")
		}
		switch JobStatus(status) {
		case JobStatusPending:
			stats.Pending = count
		case JobStatusLeased:
			stats.Leased = count
		case JobStatusDone:
			stats.Done = count
		case JobStatusDead:
			stats.Dead = count
		}
	}
	return stats, rows.Err()
}

// ReleaseOrphanedLeases returns all leased jobs to pending regardless of
// lease expiry. Called once at daemon startup: any lease surviving a
// process restart belongs to a worker that no longer exists.
func (s *Store) ReleaseOrphanedLeases(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE detail_queue_jobs
		SET status = 'pending', leased_by = NULL, lease_expires_at = NULL, updated_at = ?
		WHERE status = 'leased'
	`, time.Now().UTC())
	if err != nil {
		if db.IsDatabaseClosed(err) {
			return 0, err
		}
		return 0, errors.Wrap(err, "failed to release orphaned leases")
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var leasedBy, jobErr sql.NullString
	var leaseExpires sql.NullTime

	err := row.Scan(
		&job.ID, &job.Source, &job.VesselKey, &job.Reason, &job.Status,
		&job.RetryCount, &job.MaxRetries,
		&leasedBy, &leaseExpires, &jobErr,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LeasedBy = leasedBy.String
	job.Error = jobErr.String
	if leaseExpires.Valid {
		job.LeaseExpiresAt = &leaseExpires.Time
	}
	return &job, nil
}
