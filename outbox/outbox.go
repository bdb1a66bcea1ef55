// Package outbox is the append-only ledger of notification intents.
//
// Entries are written in the same transaction as the authoritative state
// change they describe, so a notification can never exist without its
// committed diff event. An external deliverer polls pending rows and marks
// them dispatched; the pipeline never blocks on delivery.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/teranos/keelwatch/diff"
)

// Entry is one notification intent
type Entry struct {
	ID           int64           `json:"id"`
	RunID        string          `json:"run_id"`
	Source       string          `json:"source"`
	VesselKey    string          `json:"vessel_key"`
	EventType    diff.EventType  `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Dispatched   bool            `json:"dispatched"`
	CreatedAt    time.Time       `json:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}

// Payload is the notification body snapshot serialized into an entry
type Payload struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	OldPrice int64  `json:"old_price,omitempty"`
	NewPrice int64  `json:"new_price,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// NewPayload builds the notification payload for a diff event
func NewPayload(e diff.Event) Payload {
	return Payload{
		Title:    e.Title,
		URL:      e.URL,
		OldPrice: e.OldPrice,
		NewPrice: e.NewPrice,
		Currency: e.Currency,
	}
}
