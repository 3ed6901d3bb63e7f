package usgs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     discardLogger(),
	}
}

func TestClient_URL_Canned(t *testing.T) {
	c := testClient("https://earthquake.usgs.gov")
	w, err := domain.Canned(domain.GranularityDay)
	require.NoError(t, err)

	assert.Equal(t, "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson", c.URL(w))
}

func TestClient_URL_Range(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	c := testClient("https://earthquake.usgs.gov")
	w, err := domain.LastDays(10)
	require.NoError(t, err)

	u := c.URL(w)
	assert.Contains(t, u, "/fdsnws/event/1/query?")
	assert.Contains(t, u, "starttime=2024-04-17")
	assert.Contains(t, u, "endtime=2024-04-27")
	assert.Contains(t, u, "format=geojson")
}

func TestClient_Fetch_Success(t *testing.T) {
	fixture := loadFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/earthquakes/feed/v1.0/summary/all_day.geojson", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	day, _ := domain.Canned(domain.GranularityDay)
	set, err := c.Fetch(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FeedFetches.WithLabelValues("day", "success")))
}

func TestClient_Fetch_MalformedIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"type":"FeatureCollection"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	day, _ := domain.Canned(domain.GranularityDay)
	_, err := c.Fetch(context.Background(), day)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	require.ErrorIs(t, err, ErrMissingFeatures)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FeedFetches.WithLabelValues("day", "error")))
}

func TestClient_Fetch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`Error 400: Bad Request`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	rng, err := domain.LastDays(3)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), rng)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FeedFetches.WithLabelValues("range", "error")))
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond
	hour, _ := domain.Canned(domain.GranularityHour)
	_, err := c.Fetch(context.Background(), hour)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClient_Fetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv.URL)
	week, _ := domain.Canned(domain.GranularityWeek)
	_, err := c.Fetch(ctx, week)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Fetch_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	day, _ := domain.Canned(domain.GranularityDay)
	_, err := c.Fetch(context.Background(), day)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "usgs.Fetch", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
