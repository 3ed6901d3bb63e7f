//go:build smoke

package usgs

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

// These tests hit the real USGS feed.
// Run with: go test -tags=smoke ./internal/adapter/usgs/ -v -count=1

func smokeClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://earthquake.usgs.gov",
		metrics:    observability.NewMetricsForTesting(),
		logger:     discardLogger(),
	}
}

func TestSmoke_FetchDay(t *testing.T) {
	day, _ := domain.Canned(domain.GranularityDay)
	set, err := smokeClient().Fetch(context.Background(), day)
	require.NoError(t, err)
	assert.Positive(t, set.Len(), "the past day always has events")

	prev := 1e9
	for _, e := range set.Events() {
		assert.LessOrEqual(t, e.Magnitude, prev)
		prev = e.Magnitude
	}
}

func TestSmoke_FetchRange(t *testing.T) {
	rng, err := domain.LastDays(2)
	require.NoError(t, err)
	set, err := smokeClient().Fetch(context.Background(), rng)
	require.NoError(t, err)
	assert.Positive(t, set.Len())
}
