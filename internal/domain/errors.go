package domain

import "errors"

var (
	// ErrConfigMissing is fatal at startup: the process does not serve.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrDataUnavailable means the feed could not be fetched or was malformed.
	// The previously rendered state must be kept.
	ErrDataUnavailable = errors.New("earthquake data unavailable")

	// ErrGeocodeNotFound means the geocoder returned no match.
	ErrGeocodeNotFound = errors.New("location not found")

	// ErrGeocodeUnavailable means the geocoder could not be reached or answered badly.
	ErrGeocodeUnavailable = errors.New("geocoding unavailable")

	// ErrRenderTargetMissing means there was nothing to frame the camera on.
	ErrRenderTargetMissing = errors.New("no render target to frame")

	// ErrStaleSnapshot means an event reference points into a replaced snapshot.
	ErrStaleSnapshot = errors.New("event reference is from a replaced snapshot")

	// ErrIndexOutOfRange means an event reference is outside the current snapshot.
	ErrIndexOutOfRange = errors.New("event index out of range")
)
