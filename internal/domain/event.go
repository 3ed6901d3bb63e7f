package domain

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Shown when the feed omits a place or a depth.
const (
	UnknownPlace = "Unknown"
	UnknownDepth = "Unknown"
)

// Event is a single seismic event after boundary parsing.
type Event struct {
	ID         string   `json:"id"`
	Magnitude  float64  `json:"mag"`
	Place      string   `json:"place"`
	TimeMillis int64    `json:"time"`
	Longitude  float64  `json:"lon"`
	Latitude   float64  `json:"lat"`
	DepthKm    *float64 `json:"depth,omitempty"`
}

// Point returns the event epicenter as an orb point (lon, lat).
func (e Event) Point() orb.Point {
	return orb.Point{e.Longitude, e.Latitude}
}

// Time returns the origin time in UTC.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TimeMillis).UTC()
}

// HasDepth reports whether the feed supplied a hypocenter depth.
func (e Event) HasDepth() bool {
	return e.DepthKm != nil
}

// EventSet is an immutable snapshot of events sorted by magnitude, largest first.
type EventSet struct {
	events []Event
}

// NewEventSet copies events and sorts them by descending magnitude.
// Events of equal magnitude keep their feed order.
func NewEventSet(events []Event) EventSet {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Magnitude > sorted[j].Magnitude
	})
	return EventSet{events: sorted}
}

// Len returns the number of events.
func (s EventSet) Len() int { return len(s.events) }

// At returns the event at index i.
func (s EventSet) At(i int) (Event, bool) {
	if i < 0 || i >= len(s.events) {
		return Event{}, false
	}
	return s.events[i], true
}

// Events returns a copy of the events in order.
func (s EventSet) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Top returns up to n of the strongest events.
func (s EventSet) Top(n int) []Event {
	if n > len(s.events) {
		n = len(s.events)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, s.events[:n])
	return out
}

// Bound returns the bounding box of all epicenters. ok is false for an empty set.
func (s EventSet) Bound() (orb.Bound, bool) {
	if len(s.events) == 0 {
		return orb.Bound{}, false
	}
	b := s.events[0].Point().Bound()
	for _, e := range s.events[1:] {
		b = b.Extend(e.Point())
	}
	return b, true
}
