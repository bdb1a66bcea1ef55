// Package detailq provides the durable detail-fetch work queue with leases.
package detailq

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a detail job
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusLeased  JobStatus = "leased"
	JobStatusDone    JobStatus = "done"
	JobStatusDead    JobStatus = "dead"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusLeased, JobStatusDone, JobStatusDead:
		return true
	default:
		return false
	}
}

// Job is one "fetch full detail for this vessel" work item.
// Lifecycle: pending -> leased -> done, or back to pending on retryable
// failure / lease expiry, or dead once retries are exhausted.
type Job struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	VesselKey      string     `json:"vessel_key"`
	Reason         string     `json:"reason,omitempty"` // diff event type that enqueued the job
	Status         JobStatus  `json:"status"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	LeasedBy       string     `json:"leased_by,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewJobID generates a prefixed unique job identifier
func NewJobID() string {
	return "DQJ_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Candidate identifies one vessel awaiting a detail fetch
type Candidate struct {
	VesselKey string
	Reason    string
}

// Stats summarizes queue depth per status
type Stats struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Done    int `json:"done"`
	Dead    int `json:"dead"`
}
