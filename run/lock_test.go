package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/keelwatch/errors"
	keeltest "github.com/teranos/keelwatch/internal/testing"
)

func TestLockExcludesOtherHolders(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	locks := NewSourceLock(conn)
	ctx := context.Background()

	require.NoError(t, locks.Acquire(ctx, "northdock", "RUN_a", DefaultLockTTL))

	err := locks.Acquire(ctx, "northdock", "RUN_b", DefaultLockTTL)
	require.Error(t, err)
	assert.True(t, errors.IsSourceLocked(err))

	// Different source is independent.
	assert.NoError(t, locks.Acquire(ctx, "southquay", "RUN_b", DefaultLockTTL))
}

func TestLockIsReentrantForHolder(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	locks := NewSourceLock(conn)
	ctx := context.Background()

	require.NoError(t, locks.Acquire(ctx, "northdock", "RUN_a", DefaultLockTTL))
	assert.NoError(t, locks.Acquire(ctx, "northdock", "RUN_a", DefaultLockTTL))
}

func TestExpiredLockIsStolen(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	locks := NewSourceLock(conn)
	ctx := context.Background()

	require.NoError(t, locks.Acquire(ctx, "northdock", "RUN_dead", -time.Second))

	assert.NoError(t, locks.Acquire(ctx, "northdock", "RUN_live", DefaultLockTTL))

	// The original holder lost it.
	err := locks.Acquire(ctx, "northdock", "RUN_dead", DefaultLockTTL)
	assert.True(t, errors.IsSourceLocked(err))
}

func TestReleaseIsHolderScoped(t *testing.T) {
	conn := keeltest.CreateTestDB(t)
	locks := NewSourceLock(conn)
	ctx := context.Background()

	require.NoError(t, locks.Acquire(ctx, "northdock", "RUN_a", DefaultLockTTL))

	// A stranger's release is a no-op.
	require.NoError(t, locks.Release(ctx, "northdock", "RUN_b"))
	err := locks.Acquire(ctx, "northdock", "RUN_b", DefaultLockTTL)
	assert.True(t, errors.IsSourceLocked(err))

	require.NoError(t, locks.Release(ctx, "northdock", "RUN_a"))
	assert.NoError(t, locks.Acquire(ctx, "northdock", "RUN_b", DefaultLockTTL))
}
