package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

const (
	provider   = "mapbox"
	tracerName = "github.com/couchcryptid/quake-globe/internal/adapter/mapbox"
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// Search converts free text to the most relevant place.
func (c *Client) Search(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	ctx, span := observability.Tracer(tracerName).Start(ctx, provider+".Search")
	defer span.End()
	span.SetAttributes(attribute.String("geocode.provider", provider))

	start := time.Now()
	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "success").Inc()
	case errors.Is(err, domain.ErrGeocodeNotFound):
		c.metrics.GeocodeRequests.WithLabelValues(provider, "not_found").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		observability.RecordError(span, err)
		c.logger.Warn("mapbox search failed", "query", query, "error", err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: create request: %w", domain.ErrGeocodeUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: search request: %w", domain.ErrGeocodeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("%w: mapbox API error: status %d: %s", domain.ErrGeocodeUnavailable, resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: decode response: %w", domain.ErrGeocodeUnavailable, err)
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		return domain.GeocodingResult{}, domain.ErrGeocodeNotFound
	}

	f := mapboxResp.Features[0]
	result := domain.GeocodingResult{
		Point:       orb.Point{f.Center[0], f.Center[1]},
		DisplayName: f.PlaceName,
	}
	if len(f.BBox) == 4 {
		result.Bound = &orb.Bound{
			Min: orb.Point{f.BBox[0], f.BBox[1]},
			Max: orb.Point{f.BBox[2], f.BBox[3]},
		}
	}
	return result, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	BBox      []float64 `json:"bbox"`   // [minLon, minLat, maxLon, maxLat]; absent for points
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
