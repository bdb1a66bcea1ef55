// Package health gates destructive decisions behind per-source scan health.
//
// A vessel missing from one scan is not gone: brokers throw anti-bot blocks,
// partial timeouts and truncated pages. Removal requires a configured number
// of consecutive misses, each confirmed by a healthy full reconcile scan.
package health

import "time"

// SourceHealth is the per-source health row
type SourceHealth struct {
	Source                       string     `json:"source"`
	ConsecutiveHealthyReconciles int        `json:"consecutive_healthy_reconciles"`
	LastHealthyAt                *time.Time `json:"last_healthy_at,omitempty"`
	UpdatedAt                    time.Time  `json:"updated_at"`
}

// Result is the output of one tracker application: the full new counter
// state to persist and the vessels cleared for removal.
type Result struct {
	// Misses is the complete replacement counter state for the source.
	// Keys cleared by observation or removal are absent.
	Misses map[string]int

	// Removals lists vessel keys whose miss count crossed the threshold
	// during a healthy reconcile, sorted for determinism.
	Removals []string
}
