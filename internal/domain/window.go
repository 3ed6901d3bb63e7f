package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity names a canned USGS summary feed.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// DateLayout is the day-granularity date format used by range queries.
const DateLayout = "2006-01-02"

// MaxRangeDays caps explicit ranges so a single query stays within what the
// FDSN endpoint returns without paging.
const MaxRangeDays = 90

// sliderFeeds maps slider stops to canned feeds, left to right.
var sliderFeeds = []Granularity{GranularityHour, GranularityDay, GranularityWeek, GranularityMonth}

var granularityLabels = map[Granularity]string{
	GranularityHour:  "Past Hour",
	GranularityDay:   "Past Day",
	GranularityWeek:  "Past Week",
	GranularityMonth: "Past Month",
}

// Window is the active time span: either a canned feed or an explicit
// [Start, End) range of whole UTC days.
type Window struct {
	Granularity Granularity
	Start       time.Time
	End         time.Time

	// lastDays is set for windows built by LastDays; Current re-anchors them.
	lastDays int
}

// Canned returns a window backed by a canned summary feed.
func Canned(g Granularity) (Window, error) {
	if _, ok := granularityLabels[g]; !ok {
		return Window{}, fmt.Errorf("unknown feed granularity %q", g)
	}
	return Window{Granularity: g}, nil
}

// DateRange returns an explicit window. Both bounds are truncated to UTC days.
func DateRange(start, end time.Time) (Window, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if !end.After(start) {
		return Window{}, errors.New("range end must be after start")
	}
	if days := daysBetween(start, end); days > MaxRangeDays {
		return Window{}, fmt.Errorf("range of %d days exceeds %d", days, MaxRangeDays)
	}
	return Window{Start: start, End: end}, nil
}

// LastDays returns the n whole days ending with today (UTC): the range ends
// at tomorrow's midnight so today's events are included.
func LastDays(n int) (Window, error) {
	if n <= 0 {
		return Window{}, errors.New("day count must be positive")
	}
	end := truncateDay(clock.Now()).AddDate(0, 0, 1)
	w, err := DateRange(end.AddDate(0, 0, -n), end)
	if err != nil {
		return Window{}, err
	}
	w.lastDays = n
	return w, nil
}

// Current returns the window as of now. A window built by LastDays is
// recomputed so it keeps ending today; any other window is returned as is.
func (w Window) Current() (Window, error) {
	if w.lastDays == 0 {
		return w, nil
	}
	return LastDays(w.lastDays)
}

// SliderWindow maps a slider stop (0..3) to its canned window.
func SliderWindow(pos int) (Window, error) {
	if pos < 0 || pos >= len(sliderFeeds) {
		return Window{}, fmt.Errorf("slider position %d out of range", pos)
	}
	return Window{Granularity: sliderFeeds[pos]}, nil
}

// SliderPosition returns the slider stop for a canned window, or -1.
func (w Window) SliderPosition() int {
	for i, g := range sliderFeeds {
		if w.Granularity == g {
			return i
		}
	}
	return -1
}

// ParseWindow accepts "hour", "day", "week", "month", or "<n>d" for the last n days.
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil {
			return LastDays(n)
		}
	}
	return Canned(Granularity(s))
}

// IsRange reports whether the window is an explicit date range.
func (w Window) IsRange() bool {
	return w.Granularity == ""
}

// Days returns the number of calendar days an explicit range spans.
func (w Window) Days() int {
	if !w.IsRange() {
		return 0
	}
	return daysBetween(w.Start, w.End)
}

// Label is the user-facing name of the window.
func (w Window) Label() string {
	if !w.IsRange() {
		return granularityLabels[w.Granularity]
	}
	return fmt.Sprintf("%s to %s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

func (w Window) String() string {
	if !w.IsRange() {
		return string(w.Granularity)
	}
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}
