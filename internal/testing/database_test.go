package testing

import (
	"sync"
	stdtesting "testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent queries must all see the migrated schema: with an in-memory
// database each pooled connection would otherwise be a separate empty
// database and any query off the first connection would fail with
// "no such table".
func TestCreateTestDBSchemaSharedAcrossGoroutines(t *stdtesting.T) {
	conn := CreateTestDB(t)

	const goroutines = 8
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var count int
			errs[i] = conn.QueryRow("SELECT COUNT(*) FROM detail_queue_jobs").Scan(&count)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d could not see the migrated schema", i)
	}
}

func TestCreateTestDBAppliesMigrations(t *stdtesting.T) {
	conn := CreateTestDB(t)

	for _, table := range []string{
		"runs", "staged_listings", "staged_details", "vessels",
		"price_history", "diff_events", "detail_queue_jobs",
		"miss_counters", "source_health", "source_locks",
		"notification_outbox",
	} {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}
