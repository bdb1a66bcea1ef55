package collector

import (
	"context"
	"sync"

	"github.com/teranos/keelwatch/errors"
	"github.com/teranos/keelwatch/staging"
)

// Mock is an in-memory collector for tests and dry runs. Listings and
// details are set per source; errors can be injected to simulate broker
// outages.
type Mock struct {
	mu       sync.Mutex
	listings map[string][]staging.ListingObservation
	details  map[string]map[string]*staging.DetailObservation

	ListingErr map[string]error // source -> error to return
	DetailErr  map[string]error // vessel key -> error to return

	FetchListingsCalls int
	FetchDetailCalls   int
}

// NewMock creates an empty mock collector
func NewMock() *Mock {
	return &Mock{
		listings:   make(map[string][]staging.ListingObservation),
		details:    make(map[string]map[string]*staging.DetailObservation),
		ListingErr: make(map[string]error),
		DetailErr:  make(map[string]error),
	}
}

// SetListings replaces the listing scan result for a source
func (m *Mock) SetListings(source string, obs []staging.ListingObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[source] = obs
}

// SetDetail sets the detail document for one vessel
func (m *Mock) SetDetail(source string, obs *staging.DetailObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details[source] == nil {
		m.details[source] = make(map[string]*staging.DetailObservation)
	}
	m.details[source][obs.VesselKey] = obs
}

// FetchListings implements ListingCollector
func (m *Mock) FetchListings(_ context.Context, source string) ([]staging.ListingObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchListingsCalls++

	if err := m.ListingErr[source]; err != nil {
		return nil, err
	}

	obs := make([]staging.ListingObservation, len(m.listings[source]))
	copy(obs, m.listings[source])
	return obs, nil
}

// FetchDetail implements DetailCollector
func (m *Mock) FetchDetail(_ context.Context, source, vesselKey string) (*staging.DetailObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchDetailCalls++

	if err := m.DetailErr[vesselKey]; err != nil {
		return nil, err
	}

	obs, ok := m.details[source][vesselKey]
	if !ok {
		return nil, errors.NewNotFound("no detail for %s/%s", source, vesselKey)
	}
	out := *obs
	return &out, nil
}
