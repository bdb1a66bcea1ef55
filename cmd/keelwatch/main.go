package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/cmd/keelwatch/commands"
	"github.com/teranos/keelwatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "keelwatch",
	Short: "keelwatch - Vessel listing watcher and diff pipeline",
	Long: `keelwatch - Staged ingestion and reconciliation for vessel-for-sale listings.

keelwatch scrapes broker listing pages, diffs each scan against its
authoritative inventory, and turns the differences into durable events:
new vessels, price moves, sales and gated removals.

Available commands:
  run     - Execute one pipeline run (detect, reconcile, detail)
  daemon  - Run the scheduler and detail workers in foreground
  vessel  - Inspect the vessel inventory
  queue   - Manage the detail fetch queue
  outbox  - Inspect and drain pending notifications
  config  - Manage keelwatch configuration
  db      - Database statistics

Examples:
  keelwatch run detect              # One detect pass over all sources
  keelwatch daemon start            # Run scheduled pipeline in foreground
  keelwatch vessel ls northdock     # Active inventory for a source
  keelwatch queue stats             # Detail queue depth
  keelwatch outbox dispatch         # Print and drain notifications`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.VesselCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.OutboxCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
