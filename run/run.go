// Package run orchestrates the pipeline: it sequences collectors, staging,
// diffing, health tracking and applying for each of the three run types,
// and owns the run ledger.
package run

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/keelwatch/diff"
)

// Mode selects whether a run's applier writes durable state
type Mode string

const (
	ModeAuthoritative Mode = "authoritative"
	ModeShadow        Mode = "shadow"
)

// Status represents the lifecycle state of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// Run is one orchestrator execution. Created at invocation start,
// finalized exactly once at exit, immutable afterwards.
type Run struct {
	ID           string          `json:"id"`
	Type         diff.RunType    `json:"run_type"`
	Mode         Mode            `json:"mode"`
	Sources      []string        `json:"sources"`
	Status       Status          `json:"status"`
	SourceHealth map[string]bool `json:"source_health,omitempty"` // source -> scanned fully
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Healthy reports whether the named source's scan completed fully in this run
func (r *Run) Healthy(source string) bool {
	return r.SourceHealth[source]
}

// NewRunID generates a prefixed unique run identifier
func NewRunID() string {
	return "RUN_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
