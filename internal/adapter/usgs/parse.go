package usgs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/quake-globe/internal/domain"
)

// ErrMissingFeatures is returned for a payload without a features collection.
var ErrMissingFeatures = errors.New("invalid data format: missing features")

// feed is the FeatureCollection envelope. Point coordinates are decoded by
// hand: USGS sends [lon, lat, null] when the depth is unknown, which the
// geojson geometry decoder rejects.
type feed struct {
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	ID         any            `json:"id"`
	Properties map[string]any `json:"properties"`
	Geometry   *struct {
		Type        geojson.GeometryType `json:"type"`
		Coordinates json.RawMessage      `json:"coordinates"`
	} `json:"geometry"`
}

// ParseFeed decodes a USGS FeatureCollection into a sorted EventSet, applying
// the defaulting rules once: null magnitude -> 0, null place -> "Unknown",
// missing or null depth -> absent. Features without a point geometry are skipped.
func ParseFeed(data []byte, logger *slog.Logger) (domain.EventSet, error) {
	var fc feed
	if err := json.Unmarshal(data, &fc); err != nil {
		return domain.EventSet{}, fmt.Errorf("decode feed: %w", err)
	}
	if fc.Features == nil {
		return domain.EventSet{}, ErrMissingFeatures
	}

	events := make([]domain.Event, 0, len(fc.Features))
	skipped := 0
	for _, rf := range fc.Features {
		f, depth, ok := rf.point()
		if !ok {
			skipped++
			continue
		}
		events = append(events, parseFeature(f, depth))
	}
	if skipped > 0 {
		logger.Warn("skipped features without point geometry", "skipped", skipped, "kept", len(events))
	}
	return domain.NewEventSet(events), nil
}

// point converts a raw feature into a geojson point feature plus its depth,
// which is nil when the feed leaves it out or sends null.
func (rf rawFeature) point() (*geojson.Feature, *float64, bool) {
	if rf.Geometry == nil || rf.Geometry.Type != geojson.GeometryPoint {
		return nil, nil, false
	}
	var coords []*float64
	if err := json.Unmarshal(rf.Geometry.Coordinates, &coords); err != nil {
		return nil, nil, false
	}
	if len(coords) < 2 || coords[0] == nil || coords[1] == nil {
		return nil, nil, false
	}

	f := geojson.NewPointFeature([]float64{*coords[0], *coords[1]})
	f.ID = rf.ID
	if rf.Properties != nil {
		f.Properties = rf.Properties
	}
	var depth *float64
	if len(coords) >= 3 {
		depth = coords[2]
	}
	return f, depth, true
}

func parseFeature(f *geojson.Feature, depth *float64) domain.Event {
	e := domain.Event{
		ID:        featureID(f),
		Longitude: f.Geometry.Point[0],
		Latitude:  f.Geometry.Point[1],
		Place:     domain.UnknownPlace,
		DepthKm:   depth,
	}
	if mag, err := f.PropertyFloat64("mag"); err == nil {
		e.Magnitude = mag
	}
	if place, err := f.PropertyString("place"); err == nil && strings.TrimSpace(place) != "" {
		e.Place = place
	}
	if ms, err := f.PropertyFloat64("time"); err == nil {
		e.TimeMillis = int64(ms)
	}
	return e
}

func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case string:
		return id
	case nil:
		if code, err := f.PropertyString("code"); err == nil {
			return code
		}
		return ""
	default:
		return fmt.Sprint(id)
	}
}
