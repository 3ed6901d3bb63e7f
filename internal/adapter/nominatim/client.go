package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
)

const (
	provider   = "nominatim"
	userAgent  = "quake-globe/1.0 (+https://github.com/couchcryptid/quake-globe)"
	tracerName = "github.com/couchcryptid/quake-globe/internal/adapter/nominatim"
)

// Client implements domain.Geocoder using the OpenStreetMap Nominatim search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim geocoding client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// Search resolves free text to the best-ranked place.
func (c *Client) Search(ctx context.Context, query string) (domain.GeocodingResult, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"q":      {query},
		"limit":  {"1"},
	}

	ctx, span := observability.Tracer(tracerName).Start(ctx, provider+".Search")
	defer span.End()
	span.SetAttributes(attribute.String("geocode.provider", provider))

	start := time.Now()
	result, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "success").Inc()
	case errors.Is(err, domain.ErrGeocodeNotFound):
		c.metrics.GeocodeRequests.WithLabelValues(provider, "not_found").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		observability.RecordError(span, err)
		c.logger.Warn("nominatim search failed", "query", query, "error", err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: create request: %w", domain.ErrGeocodeUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: search request: %w", domain.ErrGeocodeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("%w: nominatim API error: status %d: %s", domain.ErrGeocodeUnavailable, resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: decode response: %w", domain.ErrGeocodeUnavailable, err)
	}
	if len(places) == 0 {
		return domain.GeocodingResult{}, domain.ErrGeocodeNotFound
	}
	return places[0].toResult()
}

// Nominatim API response types. Coordinates arrive as decimal strings.

type place struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // [minlat, maxlat, minlon, maxlon]
}

func (p place) toResult() (domain.GeocodingResult, error) {
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.GeocodingResult{}, fmt.Errorf("%w: invalid coordinates %q,%q", domain.ErrGeocodeUnavailable, p.Lat, p.Lon)
	}

	result := domain.GeocodingResult{
		Point:       orb.Point{lon, lat},
		DisplayName: p.DisplayName,
	}
	if b, ok := parseBoundingBox(p.BoundingBox); ok {
		result.Bound = &b
	}
	return result, nil
}

func parseBoundingBox(bb []string) (orb.Bound, bool) {
	if len(bb) != 4 {
		return orb.Bound{}, false
	}
	var v [4]float64
	for i, s := range bb {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return orb.Bound{}, false
		}
		v[i] = f
	}
	return orb.Bound{
		Min: orb.Point{v[2], v[0]},
		Max: orb.Point{v[3], v[1]},
	}, true
}
