package viewer

import (
	"fmt"
	"time"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/scene"
)

const (
	SummaryHeader = "Top Earthquakes:"
	ViewAllLabel  = "View All"
	SummarySize   = 10
	NoDataMessage = "No earthquake data available."
)

// TableColumns are the headings of the full event table.
var TableColumns = []string{"Mag", "Depth (km)", "Location", "Time (UTC)"}

// Fly-to parameters for a selected event.
const (
	EventFlightAltitude = 200_000.0
	EventFlightPitch    = -30.0
	EventFlightDuration = 2 * time.Second
)

// SummaryEntry is one clickable label of the summary bar.
type SummaryEntry struct {
	Label string
	Ref   EventRef
}

// SummaryBar lists the strongest events of the current snapshot. ViewAll is
// empty when there are no events.
type SummaryBar struct {
	Header  string
	Entries []SummaryEntry
	ViewAll string
}

// TableRow is one event in the full table.
type TableRow struct {
	Magnitude string
	Depth     string
	Place     string
	Time      string
	Ref       EventRef
}

// Table is the full event list. Placeholder is set instead of rows when the
// snapshot is empty.
type Table struct {
	Columns     []string
	Rows        []TableRow
	Placeholder string
}

// SummaryBar builds the top-N bar for the current snapshot.
func (c *Controller) SummaryBar() SummaryBar {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BuildSummaryBar(c.generation, c.events)
}

// Table builds the full table for the current snapshot.
func (c *Controller) Table() Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BuildTable(c.generation, c.events)
}

// BuildSummaryBar renders the summary bar for a snapshot.
func BuildSummaryBar(gen uint64, set domain.EventSet) SummaryBar {
	bar := SummaryBar{Header: SummaryHeader}
	for i, e := range set.Top(SummarySize) {
		bar.Entries = append(bar.Entries, SummaryEntry{
			Label: fmt.Sprintf("%.1f - %s", e.Magnitude, e.Place),
			Ref:   EventRef{Generation: gen, Index: i},
		})
	}
	if set.Len() > 0 {
		bar.ViewAll = ViewAllLabel
	}
	return bar
}

// BuildTable renders the full table for a snapshot.
func BuildTable(gen uint64, set domain.EventSet) Table {
	t := Table{Columns: TableColumns}
	if set.Len() == 0 {
		t.Placeholder = NoDataMessage
		return t
	}
	t.Rows = make([]TableRow, 0, set.Len())
	for i, e := range set.Events() {
		t.Rows = append(t.Rows, TableRow{
			Magnitude: fmt.Sprintf("%.1f", e.Magnitude),
			Depth:     domain.FormatDepth(e),
			Place:     e.Place,
			Time:      domain.FormatTime(e),
			Ref:       EventRef{Generation: gen, Index: i},
		})
	}
	return t
}

// FlyTo moves the camera to the referenced event. References from a replaced
// snapshot fail with domain.ErrStaleSnapshot.
func (c *Controller) FlyTo(ref EventRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.flightFor(ref)
	if err != nil {
		return err
	}
	c.scene.FlyTo(f)
	return nil
}

// flightFor resolves ref against the current snapshot. Callers hold mu.
func (c *Controller) flightFor(ref EventRef) (scene.Flight, error) {
	if ref.Generation != c.generation {
		return scene.Flight{}, fmt.Errorf("generation %d, current %d: %w", ref.Generation, c.generation, domain.ErrStaleSnapshot)
	}
	e, ok := c.events.At(ref.Index)
	if !ok {
		return scene.Flight{}, fmt.Errorf("index %d of %d: %w", ref.Index, c.events.Len(), domain.ErrIndexOutOfRange)
	}
	return scene.Flight{
		Destination: e.Point(),
		Altitude:    EventFlightAltitude,
		PitchDeg:    EventFlightPitch,
		Duration:    EventFlightDuration,
	}, nil
}
