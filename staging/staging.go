// Package staging is the run-scoped holding area for raw observations.
//
// A run stages what its collectors saw, the diff engine reads it back, and
// the rows are disposable once the run's diff has been applied. No run ever
// reads another run's staged rows.
package staging

import (
	"encoding/json"
	"time"
)

// ListingObservation is one raw listing-page sighting of a vessel
type ListingObservation struct {
	VesselKey  string    `json:"vessel_key"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	Price      int64     `json:"price"` // Minor currency units (cents)
	Currency   string    `json:"currency,omitempty"`
	Status     string    `json:"status,omitempty"` // raw broker signal; "sold" is the explicit sale marker
	ObservedAt time.Time `json:"observed_at"`
}

// Sold reports whether the broker explicitly flagged this listing as sold
func (o ListingObservation) Sold() bool {
	return o.Status == "sold"
}

// DetailObservation is one full detail-page fetch for a vessel
type DetailObservation struct {
	VesselKey  string          `json:"vessel_key"`
	Title      string          `json:"title,omitempty"`
	URL        string          `json:"url,omitempty"`
	Price      int64           `json:"price"`
	Currency   string          `json:"currency,omitempty"`
	Status     string          `json:"status,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"` // normalized detail snapshot
	ObservedAt time.Time       `json:"observed_at"`
}

// Listing flattens a detail observation to the listing shape the diff
// engine consumes. Detail runs diff on the same fields a listing scan does.
func (o DetailObservation) Listing() ListingObservation {
	return ListingObservation{
		VesselKey:  o.VesselKey,
		Title:      o.Title,
		URL:        o.URL,
		Price:      o.Price,
		Currency:   o.Currency,
		Status:     o.Status,
		ObservedAt: o.ObservedAt,
	}
}
