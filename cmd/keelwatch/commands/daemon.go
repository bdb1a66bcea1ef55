package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/collector"
	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/logger"
	"github.com/teranos/keelwatch/run"
)

// DaemonCmd manages the long-running scheduler process
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the keelwatch daemon (scheduled runs + detail workers)",
	Long: `daemon — Manage the keelwatch daemon.

The daemon drives the pipeline on cron cadences: periodic detect runs,
less frequent reconcile runs, continuous detail-queue draining and hourly
housekeeping sweeps.

Example:
  keelwatch daemon start            # Start daemon in foreground
  keelwatch daemon start --shadow   # Dry-run everything, write nothing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var daemonShadowFlag bool

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the keelwatch daemon",
	Long: `Start the keelwatch daemon in foreground mode.

The daemon will:
- Schedule detect and reconcile runs per the configured cron expressions
- Run a detail worker pool per enabled source
- Expire stale queue jobs and purge staged rows past retention hourly
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if daemonShadowFlag {
			cfg.Shadow = true
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		col := collector.NewHTTPJSONCollector(cfg.Collector, cfg.Sources, logger.Logger)
		orch := run.NewOrchestrator(database, cfg, col, logger.Logger)
		sched := run.NewScheduler(orch, cfg, logger.Logger)

		if err := sched.Start(); err != nil {
			return err
		}

		// Tunables (removal threshold, lease duration, rate limits) follow
		// config file edits without a restart.
		if watcher, err := config.NewConfigWatcher(config.GetCLIConfigPath()); err == nil {
			config.SetGlobalWatcher(watcher)
			watcher.OnReload(func(next *config.Config) error {
				if daemonShadowFlag {
					next.Shadow = true
				}
				sched.Reload(next)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		} else {
			logger.Warnw("Config watching unavailable", "error", err)
		}

		fmt.Println("keelwatch daemon started")
		fmt.Printf("  Sources:   %v\n", cfg.EnabledSources())
		fmt.Printf("  Detect:    %s\n", cfg.Scheduler.DetectCron)
		fmt.Printf("  Reconcile: %s\n", cfg.Scheduler.ReconcileCron)
		fmt.Printf("  Workers:   %d per source\n", cfg.Queue.Workers)
		if cfg.Shadow {
			fmt.Println("  Mode:      shadow (no durable writes)")
		}
		fmt.Println("\nPress Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")
		sched.Stop()
		fmt.Println("keelwatch daemon stopped")
		return nil
	},
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonShadowFlag, "shadow", false, "Shadow mode: compute and log, write nothing durable")
	DaemonCmd.AddCommand(daemonStartCmd)
}
