package domain

// RenderMode selects how an EventSet is drawn.
type RenderMode int

const (
	// ModeMarkers draws one styled marker per event.
	ModeMarkers RenderMode = iota
	// ModeDensity feeds projected, magnitude-weighted points to a heat layer.
	ModeDensity
)

func (m RenderMode) String() string {
	if m == ModeDensity {
		return "density"
	}
	return "markers"
}

// Toggle returns the other mode.
func (m RenderMode) Toggle() RenderMode {
	if m == ModeDensity {
		return ModeMarkers
	}
	return ModeDensity
}
