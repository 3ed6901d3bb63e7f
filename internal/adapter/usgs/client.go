package usgs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

const (
	userAgent  = "quake-globe/1.0"
	tracerName = "github.com/couchcryptid/quake-globe/internal/adapter/usgs"
)

// maxBody bounds the feed payload; all_month is roughly 10 MB.
const maxBody = 64 << 20

// Client implements domain.Feed against the USGS earthquake GeoJSON feeds.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS feed client rooted at baseURL
// (normally https://earthquake.usgs.gov).
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// URL returns the request URL for a window: the canned summary feed for
// hour/day/week/month, or an FDSN event query for an explicit date range.
func (c *Client) URL(w domain.Window) string {
	if !w.IsRange() {
		return fmt.Sprintf("%s/earthquakes/feed/v1.0/summary/all_%s.geojson", c.baseURL, w.Granularity)
	}
	params := url.Values{
		"format":    {"geojson"},
		"starttime": {w.Start.Format(domain.DateLayout)},
		"endtime":   {w.End.Format(domain.DateLayout)},
		"orderby":   {"magnitude"},
	}
	return c.baseURL + "/fdsnws/event/1/query?" + params.Encode()
}

// Fetch retrieves and parses the events for w. Every failure wraps
// domain.ErrDataUnavailable.
func (c *Client) Fetch(ctx context.Context, w domain.Window) (domain.EventSet, error) {
	label := observability.WindowLabel(w)
	ctx, span := observability.Tracer(tracerName).Start(ctx, "usgs.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("feed.window", w.String()))

	start := time.Now()
	set, err := c.fetch(ctx, w)

	c.metrics.FeedFetchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedFetches.WithLabelValues(label, "error").Inc()
		observability.RecordError(span, err)
		return domain.EventSet{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	c.metrics.FeedFetches.WithLabelValues(label, "success").Inc()
	span.SetAttributes(attribute.Int("feed.events", set.Len()))
	c.logger.Debug("feed fetched", "window", w.String(), "events", set.Len())
	return set, nil
}

func (c *Client) fetch(ctx context.Context, w domain.Window) (domain.EventSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(w), nil)
	if err != nil {
		return domain.EventSet{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.EventSet{}, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.EventSet{}, fmt.Errorf("usgs API error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domain.EventSet{}, fmt.Errorf("read response: %w", err)
	}
	return ParseFeed(data, c.logger)
}
