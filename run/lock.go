package run

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/keelwatch/errors"
)

// DefaultLockTTL bounds how long a crashed run can hold a source
const DefaultLockTTL = 15 * time.Minute

// SourceLock is a durable advisory lock keyed by source. Detect and
// reconcile for the same source must not interleave: reconcile's removal
// candidates assume a full, stable listing snapshot.
type SourceLock struct {
	db *sql.DB
}

// NewSourceLock creates a source lock over the given database
func NewSourceLock(db *sql.DB) *SourceLock {
	return &SourceLock{db: db}
}

// Acquire takes the lock for a source, stealing it only if the previous
// holder's TTL has lapsed. Returns errors.ErrSourceLocked when held.
func (l *SourceLock) Acquire(ctx context.Context, source, holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	// Single upsert: the WHERE on the conflict arm makes the steal atomic.
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO source_locks (source, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE source_locks.expires_at <= ? OR source_locks.holder = excluded.holder
	`, source, holder, expiry, now)
	if err != nil {
		return errors.Wrap(err, "failed to acquire source lock")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check lock acquisition")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrSourceLocked, "source %s", source)
	}
	return nil
}

// Release drops the lock if this holder still owns it. Releasing a lock
// stolen after TTL expiry is a no-op, not an error.
func (l *SourceLock) Release(ctx context.Context, source, holder string) error {
	_, err := l.db.ExecContext(ctx,
		"DELETE FROM source_locks WHERE source = ? AND holder = ?", source, holder)
	if err != nil {
		return errors.Wrap(err, "failed to release source lock")
	}
	return nil
}
