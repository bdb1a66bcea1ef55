package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/errors"
)

func testCollector(baseURL string) *HTTPJSONCollector {
	return NewHTTPJSONCollector(
		config.CollectorConfig{TimeoutSeconds: 5, MaxRetries: 2, BackoffBaseMs: 1},
		map[string]config.SourceConfig{
			"northport": {BaseURL: baseURL, Enabled: true},
			"mothballs": {BaseURL: baseURL, Enabled: false},
		},
		zap.NewNop().Sugar(),
	)
}

func TestFetchListingsPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"listings": [{"id": "NP-001", "title": "Hallberg-Rassy 40", "price": 50000000, "currency": "EUR"}], "next_page": 2}`)
		case "2":
			fmt.Fprint(w, `{"listings": [{"id": "NP-002", "price": 21000000, "currency": "EUR", "status": "sold"}]}`)
		default:
			http.Error(w, "bad page", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	obs, err := testCollector(server.URL).FetchListings(context.Background(), "northport")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "NP-001", obs[0].VesselKey)
	assert.Equal(t, int64(50_000_000), obs[0].Price)
	assert.True(t, obs[1].Sold())
}

func TestFetchListingsRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream wobble", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"listings": []}`)
	}))
	defer server.Close()

	obs, err := testCollector(server.URL).FetchListings(context.Background(), "northport")
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchListingsFailsAfterRetryBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testCollector(server.URL).FetchListings(context.Background(), "northport")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestFetchDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/listings/NP-001", r.URL.Path)
		fmt.Fprint(w, `{"id": "NP-001", "title": "Hallberg-Rassy 40", "price": 48000000, "currency": "EUR", "status": "sold"}`)
	}))
	defer server.Close()

	obs, err := testCollector(server.URL).FetchDetail(context.Background(), "northport", "NP-001")
	require.NoError(t, err)
	assert.Equal(t, "NP-001", obs.VesselKey)
	assert.Equal(t, int64(48_000_000), obs.Price)
	assert.Equal(t, "sold", obs.Status)
	assert.NotEmpty(t, obs.Payload)
}

func TestFetchDetailNotFoundIsNonRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := testCollector(server.URL).FetchDetail(context.Background(), "northport", "NP-404")
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
}

func TestDisabledSourceRejected(t *testing.T) {
	_, err := testCollector("http://unused.example").FetchListings(context.Background(), "mothballs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	_, err = testCollector("http://unused.example").FetchListings(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}
