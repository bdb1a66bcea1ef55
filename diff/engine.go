package diff

import (
	"sort"
	"time"

	"github.com/teranos/keelwatch/staging"
	"github.com/teranos/keelwatch/vessel"
)

// Compute derives diff events for one (run, source) pair.
//
// Pure function of the staged observations, the authoritative snapshot and
// the run type. Repeated calls with the same inputs produce identical output;
// recordedAt is the only timestamp that appears in the result.
//
// Removal candidates are computed only for reconcile runs: a partial listing
// scan must never be mistaken for "this vessel is gone."
func Compute(runID, source string, runType RunType, staged []staging.ListingObservation, authoritative map[string]*vessel.Vessel, recordedAt time.Time) []Event {
	events := make([]Event, 0, len(staged))

	obs := make([]staging.ListingObservation, len(staged))
	copy(obs, staged)
	sort.Slice(obs, func(i, j int) bool { return obs[i].VesselKey < obs[j].VesselKey })

	seen := make(map[string]bool, len(obs))
	for _, o := range obs {
		seen[o.VesselKey] = true
		events = append(events, compareOne(runID, source, o, authoritative[o.VesselKey], recordedAt))
	}

	if runType != RunReconcile {
		return events
	}

	// Reconcile scans the full listing set, so an authoritative vessel with
	// no staged counterpart is a removal candidate. Not yet a removal: the
	// health tracker decides that.
	var missing []string
	for key, v := range authoritative {
		if !seen[key] && v.Status != vessel.StatusRemoved {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)

	for _, key := range missing {
		v := authoritative[key]
		events = append(events, Event{
			RunID:      runID,
			Source:     source,
			VesselKey:  key,
			Type:       EventRemovalCandidate,
			OldPrice:   v.Price,
			OldStatus:  v.Status,
			RecordedAt: recordedAt,
		})
	}

	return events
}

// compareOne classifies a single staged observation against its
// authoritative counterpart.
//
// Tie-break: an explicit sold signal supersedes a price change — a sale
// event closes the listing, so the final asking price never enters the
// price history.
func compareOne(runID, source string, o staging.ListingObservation, current *vessel.Vessel, recordedAt time.Time) Event {
	e := Event{
		RunID:      runID,
		Source:     source,
		VesselKey:  o.VesselKey,
		NewPrice:   o.Price,
		Title:      o.Title,
		URL:        o.URL,
		Currency:   o.Currency,
		RecordedAt: recordedAt,
	}

	if current == nil {
		e.Type = EventInserted
		e.NewStatus = vessel.StatusActive
		if o.Sold() {
			e.NewStatus = vessel.StatusSold
		}
		return e
	}

	e.OldPrice = current.Price
	e.OldStatus = current.Status

	switch {
	case o.Sold() && current.Status != vessel.StatusSold:
		e.Type = EventSold
		e.NewStatus = vessel.StatusSold
	case o.Price != current.Price:
		e.Type = EventPriceChanged
		e.NewStatus = current.Status
	default:
		e.Type = EventUnchanged
		e.NewStatus = current.Status
	}

	return e
}

// RemovalEvent builds the removed event the applier commits once the health
// tracker has cleared a candidate past the miss threshold.
func RemovalEvent(runID, source, key string, current *vessel.Vessel, recordedAt time.Time) Event {
	e := Event{
		RunID:      runID,
		Source:     source,
		VesselKey:  key,
		Type:       EventRemoved,
		NewStatus:  vessel.StatusRemoved,
		RecordedAt: recordedAt,
	}
	if current != nil {
		e.OldPrice = current.Price
		e.NewPrice = current.Price
		e.OldStatus = current.Status
		e.Title = current.Title
		e.URL = current.URL
		e.Currency = current.Currency
	}
	return e
}
