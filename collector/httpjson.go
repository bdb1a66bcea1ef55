package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/errors"
	"github.com/teranos/keelwatch/staging"
)

// HTTPJSONCollector fetches listings and details from brokers exposing the
// paginated JSON feed convention:
//
//	GET {base_url}/listings?page=N&per_page=M  -> {"listings": [...], "next_page": N+1}
//	GET {base_url}/listings/{vessel_key}       -> one detail document
//
// All requests for all sources share one rate limiter: brokers sit behind
// the same anti-bot infrastructure often enough that polite pacing has to
// be global.
type HTTPJSONCollector struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.CollectorConfig
	sources map[string]config.SourceConfig
	logger  *zap.SugaredLogger
}

// NewHTTPJSONCollector creates a collector over the configured sources
func NewHTTPJSONCollector(cfg config.CollectorConfig, sources map[string]config.SourceConfig, logger *zap.SugaredLogger) *HTTPJSONCollector {
	limit := rate.Inf
	if cfg.MaxRequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.MaxRequestsPerMinute) / 60.0)
	}

	return &HTTPJSONCollector{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		sources: sources,
		logger:  logger,
	}
}

type listingJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Price    int64  `json:"price"` // minor currency units
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type listingPage struct {
	Listings []listingJSON `json:"listings"`
	NextPage *int          `json:"next_page,omitempty"`
}

// FetchListings walks the source's listing pages until the feed reports no
// next page. Any page failing after retries fails the whole scan: a partial
// listing set must surface as unhealthy, never as a smaller fleet.
func (c *HTTPJSONCollector) FetchListings(ctx context.Context, source string) ([]staging.ListingObservation, error) {
	src, err := c.sourceConfig(source)
	if err != nil {
		return nil, err
	}

	var observations []staging.ListingObservation
	page := 1
	for {
		var body []byte
		url := fmt.Sprintf("%s/listings?page=%d", src.BaseURL, page)
		if src.PageSize > 0 {
			url = fmt.Sprintf("%s&per_page=%d", url, src.PageSize)
		}

		err := withRetry(ctx, c.cfg.MaxRetries, c.backoffBase(), func() error {
			var fetchErr error
			body, fetchErr = c.get(ctx, url)
			return fetchErr
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch listings page %d for %s", page, source)
		}

		var parsed listingPage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, errors.Wrapf(err, "failed to parse listings page %d for %s", page, source)
		}

		observedAt := time.Now().UTC()
		for _, l := range parsed.Listings {
			if l.ID == "" {
				return nil, errors.Newf("listing without id on page %d for %s", page, source)
			}
			observations = append(observations, staging.ListingObservation{
				VesselKey:  l.ID,
				Title:      l.Title,
				URL:        l.URL,
				Price:      l.Price,
				Currency:   l.Currency,
				Status:     l.Status,
				ObservedAt: observedAt,
			})
		}

		if parsed.NextPage == nil {
			break
		}
		page = *parsed.NextPage
	}

	c.logger.Debugw("Listing scan complete",
		"source", source,
		"count", len(observations),
		"pages", page)

	return observations, nil
}

// FetchDetail fetches one vessel's detail document. The raw body is kept as
// the staged payload.
func (c *HTTPJSONCollector) FetchDetail(ctx context.Context, source, vesselKey string) (*staging.DetailObservation, error) {
	src, err := c.sourceConfig(source)
	if err != nil {
		return nil, err
	}

	var body []byte
	url := fmt.Sprintf("%s/listings/%s", src.BaseURL, vesselKey)
	err = withRetry(ctx, c.cfg.MaxRetries, c.backoffBase(), func() error {
		var fetchErr error
		body, fetchErr = c.get(ctx, url)
		return fetchErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch detail for %s/%s", source, vesselKey)
	}

	var detail listingJSON
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, errors.Wrapf(err, "failed to parse detail for %s/%s", source, vesselKey)
	}

	return &staging.DetailObservation{
		VesselKey:  vesselKey,
		Title:      detail.Title,
		URL:        detail.URL,
		Price:      detail.Price,
		Currency:   detail.Currency,
		Status:     detail.Status,
		Payload:    body,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// get performs one rate-limited request and classifies the failure modes.
// Timeouts, connection errors, 429 and 5xx are retryable; the rest are not.
func (c *HTTPJSONCollector) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait aborted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.MarkRetryable(errors.Wrapf(err, "request to %s failed", url))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.MarkRetryable(errors.Newf("%s returned HTTP %d", url, resp.StatusCode))
	default:
		return nil, errors.Newf("%s returned HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.MarkRetryable(errors.Wrapf(err, "failed to read response from %s", url))
	}
	return body, nil
}

func (c *HTTPJSONCollector) sourceConfig(source string) (config.SourceConfig, error) {
	src, ok := c.sources[source]
	if !ok {
		return config.SourceConfig{}, errors.Newf("unknown source %q", source)
	}
	if !src.Enabled {
		return config.SourceConfig{}, errors.Newf("source %q is disabled", source)
	}
	return src, nil
}

func (c *HTTPJSONCollector) backoffBase() time.Duration {
	if c.cfg.BackoffBaseMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.cfg.BackoffBaseMs) * time.Millisecond
}
