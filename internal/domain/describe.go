package domain

import (
	"fmt"
	"strings"
)

// TimestampLayout is the UTC timestamp format used in descriptions and tables.
const TimestampLayout = "2006-01-02T15:04:05"

// FormatDepth returns the depth with one decimal, or "Unknown".
func FormatDepth(e Event) string {
	if !e.HasDepth() {
		return UnknownDepth
	}
	return fmt.Sprintf("%.1f", *e.DepthKm)
}

// FormatTime returns the origin time truncated to seconds with a " UTC" suffix.
func FormatTime(e Event) string {
	return e.Time().Format(TimestampLayout) + " UTC"
}

// Describe builds the human-readable marker description.
func Describe(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Magnitude: %s\n", FormatMagnitude(e.Magnitude))
	fmt.Fprintf(&b, "Depth: %s km\n", FormatDepth(e))
	fmt.Fprintf(&b, "Location: %s\n", e.Place)
	fmt.Fprintf(&b, "Time: %s", FormatTime(e))
	return b.String()
}
