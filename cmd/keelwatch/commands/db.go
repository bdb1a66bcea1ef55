package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/config"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage keelwatch database",
	Long: `db — Manage keelwatch database operations.

Examples:
  keelwatch db stats     # Show vessel, event and queue counts`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var active, sold, removed int
	err = database.QueryRow(`
		SELECT
			COUNT(CASE WHEN status = 'active' THEN 1 END),
			COUNT(CASE WHEN status = 'sold' THEN 1 END),
			COUNT(CASE WHEN status = 'removed' THEN 1 END)
		FROM vessels
	`).Scan(&active, &sold, &removed)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query vessel stats: %w", err)
	}

	var sources, events, priceRows, pendingOutbox int
	database.QueryRow("SELECT COUNT(DISTINCT source) FROM vessels").Scan(&sources)
	database.QueryRow("SELECT COUNT(*) FROM diff_events").Scan(&events)
	database.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&priceRows)
	database.QueryRow("SELECT COUNT(*) FROM notification_outbox WHERE dispatched = 0").Scan(&pendingOutbox)

	var runs, runningRuns int
	database.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs)
	database.QueryRow("SELECT COUNT(*) FROM runs WHERE status = 'running'").Scan(&runningRuns)

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Printf("Database Path:   %s\n", cfg.GetDatabasePath())
	fmt.Printf("Sources:         %d\n", sources)
	fmt.Println()
	fmt.Println("Vessels:")
	fmt.Printf("  Active:        %d\n", active)
	fmt.Printf("  Sold:          %d\n", sold)
	fmt.Printf("  Removed:       %d\n", removed)
	fmt.Println()
	fmt.Printf("Diff Events:     %d\n", events)
	fmt.Printf("Price History:   %d rows\n", priceRows)
	fmt.Printf("Pending Outbox:  %d\n", pendingOutbox)
	fmt.Printf("Runs:            %d (%d running)\n", runs, runningRuns)
	return nil
}
