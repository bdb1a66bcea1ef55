package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/outbox"
)

// OutboxCmd inspects and drains the notification outbox
var OutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and drain the notification outbox",
	Long: `outbox — Inspect and drain pending notification intents.

Every reportable diff event writes an outbox entry in the same transaction
as the state change. "dispatch" prints pending entries and marks them
dispatched, which is the reference deliverer; real integrations poll the
same table.

Examples:
  keelwatch outbox ls               # Pending notifications
  keelwatch outbox dispatch         # Print and mark dispatched`,
}

var outboxLimitFlag int

var outboxLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pending notification entries",
	RunE:  runOutboxLs,
}

var outboxDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Print pending notifications and mark them dispatched",
	RunE:  runOutboxDispatch,
}

func init() {
	outboxLsCmd.Flags().IntVar(&outboxLimitFlag, "limit", 50, "Max entries to show")
	outboxDispatchCmd.Flags().IntVar(&outboxLimitFlag, "limit", 50, "Max entries to dispatch")

	OutboxCmd.AddCommand(outboxLsCmd)
	OutboxCmd.AddCommand(outboxDispatchCmd)
}

func runOutboxLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	entries, err := outbox.NewStore(database).ListPending(cmd.Context(), outboxLimitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Outbox is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tVESSEL\tEVENT\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Source, e.VesselKey, e.EventType,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runOutboxDispatch(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := outbox.NewStore(database)
	entries, err := store.ListPending(cmd.Context(), outboxLimitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Nothing to dispatch")
		return nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		var p outbox.Payload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode payload for entry %d: %w", e.ID, err)
		}

		switch {
		case p.OldPrice != 0 && p.NewPrice != 0:
			fmt.Printf("[%s] %s/%s %s: %d -> %d %s\n",
				e.EventType, e.Source, e.VesselKey, p.Title, p.OldPrice, p.NewPrice, p.Currency)
		default:
			fmt.Printf("[%s] %s/%s %s %s\n",
				e.EventType, e.Source, e.VesselKey, p.Title, p.URL)
		}
		ids = append(ids, e.ID)
	}

	if err := store.MarkDispatched(cmd.Context(), ids); err != nil {
		return err
	}
	fmt.Printf("\nDispatched %d notification(s)\n", len(ids))
	return nil
}
