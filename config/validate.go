package config

import "github.com/teranos/keelwatch/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "keelwatch.db"

	// Collector: timeout must be positive, rate limit 0 = unlimited
	if c.Collector.TimeoutSeconds <= 0 {
		return errors.Newf("collector.timeout_seconds must be > 0, got %d", c.Collector.TimeoutSeconds)
	}
	if c.Collector.MaxRequestsPerMinute < 0 {
		return errors.Newf("collector.max_requests_per_minute must be >= 0, got %d", c.Collector.MaxRequestsPerMinute)
	}
	if c.Collector.MaxRetries < 0 {
		return errors.Newf("collector.max_retries must be >= 0, got %d", c.Collector.MaxRetries)
	}

	// Queue workers: 0 = no background workers, negative = invalid
	if c.Queue.Workers < 0 {
		return errors.Newf("queue.workers must be >= 0, got %d", c.Queue.Workers)
	}
	if c.Queue.ClaimBatchSize <= 0 {
		return errors.Newf("queue.claim_batch_size must be > 0, got %d", c.Queue.ClaimBatchSize)
	}
	if c.Queue.LeaseDurationSeconds <= 0 {
		return errors.Newf("queue.lease_duration_seconds must be > 0, got %d", c.Queue.LeaseDurationSeconds)
	}
	if c.Queue.MaxRetries < 0 {
		return errors.Newf("queue.max_retries must be >= 0, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.MaxJobAgeHours <= 0 {
		return errors.Newf("queue.max_job_age_hours must be > 0, got %d", c.Queue.MaxJobAgeHours)
	}
	if c.Queue.PollIntervalSeconds <= 0 {
		return errors.Newf("queue.poll_interval_seconds must be > 0, got %d", c.Queue.PollIntervalSeconds)
	}

	// Health: threshold of 1 means a single missed healthy reconcile removes
	if c.Health.RemovalThreshold < 1 {
		return errors.Newf("health.removal_threshold must be >= 1, got %d", c.Health.RemovalThreshold)
	}
	if c.Health.MaxFailureRatio < 0 || c.Health.MaxFailureRatio > 1 {
		return errors.Newf("health.max_failure_ratio must be in [0, 1], got %f", c.Health.MaxFailureRatio)
	}

	if c.Staging.RetentionHours <= 0 {
		return errors.Newf("staging.retention_hours must be > 0, got %d", c.Staging.RetentionHours)
	}

	// Sources: enabled sources need a base URL
	for name, src := range c.Sources {
		if src.Enabled && src.BaseURL == "" {
			return errors.Newf("sources.%s.base_url cannot be empty when enabled", name)
		}
		if src.PageSize < 0 {
			return errors.Newf("sources.%s.page_size must be >= 0, got %d", name, src.PageSize)
		}
	}

	return nil
}
