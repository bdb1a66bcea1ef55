// Package collector defines how listing and detail observations reach the
// pipeline. Concrete collectors are per-broker; the pipeline only sees the
// interfaces and the retryable/non-retryable error classification.
package collector

import (
	"context"

	"github.com/teranos/keelwatch/staging"
)

// ListingCollector fetches the lightweight listing-page view of a source.
// Any error means the source's scan is unhealthy for this run.
type ListingCollector interface {
	FetchListings(ctx context.Context, source string) ([]staging.ListingObservation, error)
}

// DetailCollector fetches the full detail payload for one vessel. Errors
// are classified retryable (errors.MarkRetryable) or not before the detail
// queue sees them.
type DetailCollector interface {
	FetchDetail(ctx context.Context, source, vesselKey string) (*staging.DetailObservation, error)
}

// Collector is a full per-source collector
type Collector interface {
	ListingCollector
	DetailCollector
}
