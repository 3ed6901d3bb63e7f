package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// GeocodingResult is the best match for a free-text location query.
type GeocodingResult struct {
	Point       orb.Point // lon, lat
	DisplayName string
	Bound       *orb.Bound // optional viewport of the match
}

// Geocoder resolves free text to a single best-match location.
// Implementations return ErrGeocodeNotFound when nothing matches and wrap
// transport or decoding failures in ErrGeocodeUnavailable.
type Geocoder interface {
	Search(ctx context.Context, query string) (GeocodingResult, error)
}

// Feed fetches the events for a window. Implementations wrap every failure
// in ErrDataUnavailable.
type Feed interface {
	Fetch(ctx context.Context, w Window) (EventSet, error)
}
