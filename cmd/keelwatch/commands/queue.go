package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/detailq"
)

// QueueCmd manages the detail fetch queue
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the detail fetch queue",
	Long: `queue — Inspect and manage detail fetch jobs.

Detect and reconcile runs enqueue one job per new-or-changed vessel; the
daemon's workers (or "keelwatch run detail") drain them. Jobs that exhaust
their retry budget land in the dead letter state for inspection.

Examples:
  keelwatch queue stats             # Counts per job state
  keelwatch queue ls                # Pending jobs
  keelwatch queue ls --status dead  # Dead-lettered jobs
  keelwatch queue retry DQJ_abc123  # Restore a dead job with a fresh budget`,
}

var (
	queueStatusFlag string
	queueLimitFlag  int
)

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per queue state",
	RunE:  runQueueStats,
}

var queueLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List queue jobs",
	RunE:  runQueueLs,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Restore a dead job to pending with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

func init() {
	queueLsCmd.Flags().StringVar(&queueStatusFlag, "status", "pending", "Job status to list (pending, leased, done, dead)")
	queueLsCmd.Flags().IntVar(&queueLimitFlag, "limit", 50, "Max jobs to show")

	QueueCmd.AddCommand(queueStatsCmd)
	QueueCmd.AddCommand(queueLsCmd)
	QueueCmd.AddCommand(queueRetryCmd)
}

func queueStore() (*detailq.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return nil, nil, err
	}
	return detailq.NewStore(database, cfg.Queue.MaxRetries), func() { database.Close() }, nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	store, closeDB, err := queueStore()
	if err != nil {
		return err
	}
	defer closeDB()

	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("Detail Queue")
	fmt.Printf("  Pending: %d\n", stats.Pending)
	fmt.Printf("  Leased:  %d\n", stats.Leased)
	fmt.Printf("  Done:    %d\n", stats.Done)
	fmt.Printf("  Dead:    %d\n", stats.Dead)
	return nil
}

func runQueueLs(cmd *cobra.Command, args []string) error {
	status := detailq.JobStatus(queueStatusFlag)
	if !detailq.IsValidStatus(queueStatusFlag) {
		return fmt.Errorf("unknown job status %q", queueStatusFlag)
	}

	store, closeDB, err := queueStore()
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, err := store.ListJobs(cmd.Context(), &status, queueLimitFlag)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Printf("No %s jobs\n", status)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tVESSEL\tREASON\tRETRIES\tAGE\tERROR")
	for _, j := range jobs {
		errText := j.Error
		if len(errText) > 40 {
			errText = errText[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.Source, j.VesselKey, j.Reason, j.RetryCount,
			time.Since(j.CreatedAt).Round(time.Second), errText)
	}
	return w.Flush()
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	store, closeDB, err := queueStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.RetryDead(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Job %s restored to pending\n", args[0])
	return nil
}
