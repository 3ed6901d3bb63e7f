package domain

import (
	"math"
	"strconv"
)

// MarkerAlpha is the fill opacity applied to every band color.
const MarkerAlpha = 0.8

// Band is one magnitude class used to style markers and the legend.
type Band struct {
	Min   float64 // inclusive lower bound; -Inf for the lowest band
	Color string  // CSS hex color
	Label string
}

// Bands lists the magnitude classes from strongest to weakest.
var Bands = []Band{
	{Min: 5.0, Color: "#d7191c", Label: "Mag ≥ 5.0"},
	{Min: 4.0, Color: "#fdae61", Label: "4.0 ≤ Mag < 5.0"},
	{Min: 3.0, Color: "#ffffbf", Label: "3.0 ≤ Mag < 4.0"},
	{Min: 2.0, Color: "#a6d96a", Label: "2.0 ≤ Mag < 3.0"},
	{Min: math.Inf(-1), Color: "#1a9641", Label: "Mag < 2.0"},
}

// BandFor returns the band a magnitude falls in.
func BandFor(mag float64) Band {
	for _, b := range Bands {
		if mag >= b.Min {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// MarkerSize returns the marker pixel size for a magnitude.
func MarkerSize(mag float64) float64 {
	return math.Max(1, 6+2*mag)
}

// FormatMagnitude renders a magnitude the way the tooltip shows it: shortest
// decimal form, no padding.
func FormatMagnitude(mag float64) string {
	return strconv.FormatFloat(mag, 'f', -1, 64)
}
