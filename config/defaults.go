package config

import (
	"os"

	"github.com/spf13/viper"
)

// DefaultDirPermissions is used when creating the ~/.keelwatch directory
const DefaultDirPermissions = 0750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "keelwatch.db")

	// Collector defaults
	v.SetDefault("collector.timeout_seconds", 30)
	v.SetDefault("collector.max_requests_per_minute", 10) // Polite crawling; marketplaces throttle aggressively
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.backoff_base_ms", 500)

	// Queue defaults
	v.SetDefault("queue.workers", 1)
	v.SetDefault("queue.claim_batch_size", 5)
	v.SetDefault("queue.lease_duration_seconds", 300) // 5 minutes per detail fetch
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.max_job_age_hours", 48)
	v.SetDefault("queue.poll_interval_seconds", 15)

	// Health defaults
	v.SetDefault("health.removal_threshold", 2)  // Two healthy reconciles in a row before removal
	v.SetDefault("health.max_failure_ratio", 0.2)

	// Scheduler defaults
	v.SetDefault("scheduler.detect_cron", "*/15 * * * *")  // Detect every 15 minutes
	v.SetDefault("scheduler.reconcile_cron", "0 */6 * * *") // Reconcile every 6 hours

	// Staging defaults
	v.SetDefault("staging.retention_hours", 168) // One week of staged snapshots

	// Shadow mode off by default
	v.SetDefault("shadow", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "KEELWATCH_DATABASE_PATH")

	// Shadow mode override for staged rollouts
	v.BindEnv("shadow", "KEELWATCH_SHADOW")
}

// GetDatabasePath returns the configured database path
// Checks the DB_PATH environment variable first (for dev mode override)
func GetDatabasePath() (string, error) {
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return cfg.GetDatabasePath(), nil
}
