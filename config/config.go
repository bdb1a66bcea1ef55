package config

import "fmt"

// Config represents the core keelwatch configuration
type Config struct {
	Database  DatabaseConfig          `mapstructure:"database"`
	Collector CollectorConfig         `mapstructure:"collector"`
	Queue     QueueConfig             `mapstructure:"queue"`
	Health    HealthConfig            `mapstructure:"health"`
	Scheduler SchedulerConfig         `mapstructure:"scheduler"`
	Staging   StagingConfig           `mapstructure:"staging"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Shadow    bool                    `mapstructure:"shadow"` // Shadow mode: compute and log, never write
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CollectorConfig configures outbound listing collection
type CollectorConfig struct {
	TimeoutSeconds       int `mapstructure:"timeout_seconds"`         // Per-request timeout
	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute"` // Polite rate limit per source
	MaxRetries           int `mapstructure:"max_retries"`             // Retries per page fetch
	BackoffBaseMs        int `mapstructure:"backoff_base_ms"`         // Base delay for exponential backoff
}

// QueueConfig configures the detail queue and its workers
type QueueConfig struct {
	Workers              int `mapstructure:"workers"`                // Concurrent detail workers (default: 1)
	ClaimBatchSize       int `mapstructure:"claim_batch_size"`       // Jobs claimed per poll
	LeaseDurationSeconds int `mapstructure:"lease_duration_seconds"` // Lease before a claimed job is reclaimable
	MaxRetries           int `mapstructure:"max_retries"`            // Attempts before dead-lettering
	MaxJobAgeHours       int `mapstructure:"max_job_age_hours"`      // Pending jobs older than this go dead
	PollIntervalSeconds  int `mapstructure:"poll_interval_seconds"`  // Worker idle poll interval
}

// HealthConfig configures removal gating
type HealthConfig struct {
	RemovalThreshold int     `mapstructure:"removal_threshold"` // Consecutive healthy misses before removal (default: 2)
	MaxFailureRatio  float64 `mapstructure:"max_failure_ratio"` // Page-fetch failure ratio above which a run is unhealthy
}

// SchedulerConfig configures the daemon's cron schedules
type SchedulerConfig struct {
	DetectCron    string `mapstructure:"detect_cron"`    // Cron expression for detect runs
	ReconcileCron string `mapstructure:"reconcile_cron"` // Cron expression for reconcile runs
}

// StagingConfig configures staged-row retention
type StagingConfig struct {
	RetentionHours int `mapstructure:"retention_hours"` // Staged rows of finalized runs older than this are purged
}

// SourceConfig configures one marketplace source
type SourceConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Enabled  bool   `mapstructure:"enabled"`
	PageSize int    `mapstructure:"page_size"` // Listings requested per page (0 = source default)
}

// EnabledSources returns the names of all enabled sources, sorted order not guaranteed
func (c *Config) EnabledSources() []string {
	var names []string
	for name, src := range c.Sources {
		if src.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "keelwatch.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Queue: {Workers: %d}, Health: {RemovalThreshold: %d}, Shadow: %v}",
		c.Database.Path, c.Queue.Workers, c.Health.RemovalThreshold, c.Shadow)
}
