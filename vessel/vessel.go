// Package vessel holds the authoritative record of every tracked listing.
//
// Rows in this package's tables are the single source of truth for a
// vessel's current price and status. Nothing outside the diff applier
// writes to them.
package vessel

import "time"

// Status represents the current lifecycle state of a vessel
type Status string

const (
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusRemoved Status = "removed"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusSold, StatusRemoved:
		return true
	default:
		return false
	}
}

// Vessel is the long-lived record of a listing as currently known.
// Identity is (Source, Key) where Key is the source-local listing id.
type Vessel struct {
	Source      string    `json:"source"`
	Key         string    `json:"vessel_key"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Price       int64     `json:"price"` // Minor currency units (cents)
	Currency    string    `json:"currency,omitempty"`
	Status      Status    `json:"status"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PriceHistoryEntry is one append-only price observation.
// Written only when a price_changed event commits, never updated or deleted.
type PriceHistoryEntry struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	VesselKey  string    `json:"vessel_key"`
	Price      int64     `json:"price"`
	Currency   string    `json:"currency,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
