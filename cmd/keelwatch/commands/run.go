package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/collector"
	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/logger"
	"github.com/teranos/keelwatch/run"
)

// RunCmd groups the pipeline run types
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute pipeline runs",
	Long: `run — Execute one pipeline run and exit.

Three run types cover the pipeline:
  detect     - cheap listing-page pass: new vessels, price moves, sales
  reconcile  - full scan with removal tracking; the only run type that
               can mark a vessel removed
  detail     - drain pending detail-page fetch jobs

Examples:
  keelwatch run detect                     # Detect across all enabled sources
  keelwatch run reconcile --source north   # Reconcile one source
  keelwatch run detail --limit 20          # Process up to 20 detail jobs
  keelwatch run ls                         # Recent runs
  keelwatch run show RUN_a1b2c3d4e5f6      # One run's ledger entry`,
}

var (
	runSourcesFlag []string
	runShadowFlag  bool
	detailLimit    int
	runListType    string
	runListLimit   int
)

var runDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run a detect pass over listing pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, func(ctx context.Context, orch *run.Orchestrator, sources []string) (*run.Run, error) {
			return orch.Detect(ctx, sources)
		})
	},
}

var runReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a full reconcile scan with removal tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, func(ctx context.Context, orch *run.Orchestrator, sources []string) (*run.Run, error) {
			return orch.Reconcile(ctx, sources)
		})
	},
}

var runDetailCmd = &cobra.Command{
	Use:   "detail",
	Short: "Process pending detail fetch jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, func(ctx context.Context, orch *run.Orchestrator, sources []string) (*run.Run, error) {
			return orch.DetailWorker(ctx, sources, detailLimit)
		})
	},
}

var runLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	RunE:  runLs,
}

var runShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	for _, c := range []*cobra.Command{runDetectCmd, runReconcileCmd, runDetailCmd} {
		c.Flags().StringSliceVar(&runSourcesFlag, "source", nil, "Source(s) to run against (default: all enabled)")
		c.Flags().BoolVar(&runShadowFlag, "shadow", false, "Shadow mode: compute and log, write nothing durable")
	}
	runDetailCmd.Flags().IntVar(&detailLimit, "limit", 0, "Max jobs to process (0 = one claim batch)")

	runLsCmd.Flags().StringVar(&runListType, "type", "", "Filter by run type (detect, reconcile, detail-worker)")
	runLsCmd.Flags().IntVar(&runListLimit, "limit", 20, "Number of runs to show")

	RunCmd.AddCommand(runDetectCmd)
	RunCmd.AddCommand(runReconcileCmd)
	RunCmd.AddCommand(runDetailCmd)
	RunCmd.AddCommand(runLsCmd)
	RunCmd.AddCommand(runShowCmd)
}

// executeRun loads config, wires an orchestrator over a live HTTP collector
// and invokes one run type. Ctrl+C cancels; applied events stay applied and
// the run finalizes as partial.
func executeRun(cmd *cobra.Command, invoke func(context.Context, *run.Orchestrator, []string) (*run.Run, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runShadowFlag {
		cfg.Shadow = true
	}

	sources := runSourcesFlag
	if len(sources) == 0 {
		sources = cfg.EnabledSources()
	}
	if len(sources) == 0 {
		return fmt.Errorf("no enabled sources; configure [sources.<name>] or pass --source")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	col := collector.NewHTTPJSONCollector(cfg.Collector, cfg.Sources, logger.Logger)
	orch := run.NewOrchestrator(database, cfg, col, logger.Logger)
	r, err := invoke(ctx, orch, sources)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished: %s\n", r.ID, r.Status)
	for _, source := range r.Sources {
		state := "ok"
		if !r.Healthy(source) {
			state = "unhealthy"
		}
		fmt.Printf("  %-20s %s\n", source, state)
	}
	if r.Status == run.StatusFailed && r.Error != "" {
		fmt.Printf("  error: %s\n", r.Error)
	}
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	var runType *diff.RunType
	if runListType != "" {
		if !diff.IsValidRunType(runListType) {
			return fmt.Errorf("unknown run type %q", runListType)
		}
		rt := diff.RunType(runListType)
		runType = &rt
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := run.NewStore(database).List(cmd.Context(), runType, runListLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tMODE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Type, r.Mode, r.Status,
			r.StartedAt.Format("2006-01-02 15:04:05"), duration)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	r, err := run.NewStore(database).Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Type:     %s\n", r.Type)
	fmt.Printf("Mode:     %s\n", r.Mode)
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	if r.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	for _, source := range r.Sources {
		state := "ok"
		if !r.Healthy(source) {
			state = "unhealthy"
		}
		fmt.Printf("  %-20s %s\n", source, state)
	}
	return nil
}
