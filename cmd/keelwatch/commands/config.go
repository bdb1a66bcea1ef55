package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/config"
)

// ConfigCmd manages keelwatch configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage keelwatch configuration",
	Long: `config — Manage keelwatch configuration.

Configuration merges, lowest precedence first: system (/etc/keelwatch),
user (~/.keelwatch/config.toml), CLI overrides (config_cli.toml), project
(keelwatch.toml upward from the working directory), then KEELWATCH_*
environment variables.

Examples:
  keelwatch config show                      # Effective configuration
  keelwatch config get queue.max_retries     # One value
  keelwatch config validate                  # Check the merged config
  keelwatch config set-shadow true           # Persist shadow mode
  keelwatch config set-threshold 3           # Persist removal threshold
  keelwatch config source northdock on       # Enable a source`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runConfigValidate,
}

var configSetShadowCmd = &cobra.Command{
	Use:   "set-shadow <true|false>",
	Short: "Persist shadow mode in the CLI config",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetShadow,
}

var configSetThresholdCmd = &cobra.Command{
	Use:   "set-threshold <n>",
	Short: "Persist the removal threshold in the CLI config",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetThreshold,
}

var configSourceCmd = &cobra.Command{
	Use:   "source <name> <on|off>",
	Short: "Enable or disable a source",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSource,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configSetShadowCmd)
	ConfigCmd.AddCommand(configSetThresholdCmd)
	ConfigCmd.AddCommand(configSourceCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Println("keelwatch configuration")
	fmt.Printf("  Database:   %s\n", cfg.GetDatabasePath())
	fmt.Printf("  Shadow:     %v\n", cfg.Shadow)
	fmt.Println("  Collector:")
	fmt.Printf("    Timeout:      %ds\n", cfg.Collector.TimeoutSeconds)
	fmt.Printf("    Rate limit:   %d req/min\n", cfg.Collector.MaxRequestsPerMinute)
	fmt.Printf("    Max retries:  %d\n", cfg.Collector.MaxRetries)
	fmt.Println("  Queue:")
	fmt.Printf("    Workers:      %d\n", cfg.Queue.Workers)
	fmt.Printf("    Claim batch:  %d\n", cfg.Queue.ClaimBatchSize)
	fmt.Printf("    Lease:        %ds\n", cfg.Queue.LeaseDurationSeconds)
	fmt.Printf("    Max retries:  %d\n", cfg.Queue.MaxRetries)
	fmt.Println("  Health:")
	fmt.Printf("    Removal threshold:  %d\n", cfg.Health.RemovalThreshold)
	fmt.Printf("    Max failure ratio:  %.2f\n", cfg.Health.MaxFailureRatio)
	fmt.Println("  Scheduler:")
	fmt.Printf("    Detect:     %s\n", cfg.Scheduler.DetectCron)
	fmt.Printf("    Reconcile:  %s\n", cfg.Scheduler.ReconcileCron)
	fmt.Println("  Sources:")
	if len(cfg.Sources) == 0 {
		fmt.Println("    (none configured)")
	}
	for name, src := range cfg.Sources {
		state := "disabled"
		if src.Enabled {
			state = "enabled"
		}
		fmt.Printf("    %-16s %-9s %s\n", name, state, src.BaseURL)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	value := config.Get(args[0])
	if value == nil {
		return fmt.Errorf("key %q not found", args[0])
	}
	fmt.Printf("%v\n", value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigSetShadow(cmd *cobra.Command, args []string) error {
	shadow, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", args[0])
	}

	if err := config.UpdateShadowMode(shadow); err != nil {
		return err
	}
	fmt.Printf("Shadow mode set to %v\n", shadow)
	return nil
}

func runConfigSetThreshold(cmd *cobra.Command, args []string) error {
	threshold, err := strconv.Atoi(args[0])
	if err != nil || threshold < 1 {
		return fmt.Errorf("threshold must be a positive integer, got %q", args[0])
	}

	if err := config.UpdateRemovalThreshold(threshold); err != nil {
		return err
	}
	fmt.Printf("Removal threshold set to %d\n", threshold)
	return nil
}

func runConfigSource(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[1] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}

	if err := config.UpdateSourceEnabled(args[0], enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Source %s %s\n", args[0], state)
	return nil
}
