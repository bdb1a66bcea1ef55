// Package diff computes typed change events from staged observations and
// the authoritative snapshot. It is pure: it never mutates state and never
// consults the wall clock beyond the recorded-at stamp it is handed.
package diff

import (
	"time"

	"github.com/teranos/keelwatch/vessel"
)

// RunType selects which transition path a run takes. Removal candidates are
// computed only for reconcile runs.
type RunType string

const (
	RunDetect       RunType = "detect"
	RunDetailWorker RunType = "detail-worker"
	RunReconcile    RunType = "reconcile"
)

// IsValidRunType returns true if the string is a valid RunType
func IsValidRunType(s string) bool {
	switch RunType(s) {
	case RunDetect, RunDetailWorker, RunReconcile:
		return true
	default:
		return false
	}
}

// EventType classifies the detected change for one vessel in one run
type EventType string

const (
	EventInserted         EventType = "inserted"
	EventPriceChanged     EventType = "price_changed"
	EventSold             EventType = "sold"
	EventUnchanged        EventType = "unchanged"
	EventRemovalCandidate EventType = "removal_candidate"
	EventRemoved          EventType = "removed"
)

// Notifies reports whether this event type produces a notification intent.
// Unchanged is bookkeeping; a removal candidate is input to health tracking,
// not yet a removal decision.
func (t EventType) Notifies() bool {
	switch t {
	case EventInserted, EventPriceChanged, EventSold, EventRemoved:
		return true
	default:
		return false
	}
}

// NeedsDetail reports whether this event type warrants a full detail refresh
func (t EventType) NeedsDetail() bool {
	switch t {
	case EventInserted, EventPriceChanged, EventSold:
		return true
	default:
		return false
	}
}

// Event is one immutable diff record. Consumed exactly once by the applier,
// then retained as an audit log entry.
type Event struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	VesselKey  string        `json:"vessel_key"`
	Type       EventType     `json:"event_type"`
	OldPrice   int64         `json:"old_price,omitempty"`
	NewPrice   int64         `json:"new_price,omitempty"`
	OldStatus  vessel.Status `json:"old_status,omitempty"`
	NewStatus  vessel.Status `json:"new_status,omitempty"`
	Title      string        `json:"title,omitempty"`
	URL        string        `json:"url,omitempty"`
	Currency   string        `json:"currency,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
