package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/heatmap"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/scene"
)

// --- fakes ---

type fetchFunc func(ctx context.Context, w domain.Window, call int) (domain.EventSet, error)

type fakeFeed struct {
	mu    sync.Mutex
	calls int
	fn    fetchFunc
}

func (f *fakeFeed) Fetch(ctx context.Context, w domain.Window) (domain.EventSet, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, w, call)
}

func (f *fakeFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticFeed(set domain.EventSet) *fakeFeed {
	return &fakeFeed{fn: func(context.Context, domain.Window, int) (domain.EventSet, error) {
		return set, nil
	}}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type recordingTooltip struct {
	visible bool
	text    string
	x, y    float64
}

func (t *recordingTooltip) Show(text string, x, y float64) {
	t.visible, t.text, t.x, t.y = true, text, x, y
}

func (t *recordingTooltip) Hide() { t.visible = false }

type recordingHeat struct {
	*heatmap.Layer
	mu   sync.Mutex
	sets int
}

func (h *recordingHeat) SetData(max float64, pts []heatmap.Point) {
	h.mu.Lock()
	h.sets++
	h.mu.Unlock()
	h.Layer.SetData(max, pts)
}

func (h *recordingHeat) Sets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sets
}

type fakeGeocoder struct {
	calls int
	res   domain.GeocodingResult
	err   error
}

func (g *fakeGeocoder) Search(_ context.Context, _ string) (domain.GeocodingResult, error) {
	g.calls++
	return g.res, g.err
}

// --- helpers ---

func depth(d float64) *float64 { return &d }

func sampleSet() domain.EventSet {
	return domain.NewEventSet([]domain.Event{
		{ID: "us1", Magnitude: 4.2, Place: "Taiwan", TimeMillis: 1_700_000_000_000, Longitude: 121.5, Latitude: 24.0, DepthKm: depth(12)},
		{ID: "us2", Magnitude: 6.1, Place: "Fiji", TimeMillis: 1_700_000_100_000, Longitude: 178.0, Latitude: -18.0, DepthKm: depth(550)},
		{ID: "nc3", Magnitude: 1.8, Place: "The Geysers, CA", TimeMillis: 1_700_000_200_000, Longitude: -122.8, Latitude: 38.8},
	})
}

type harness struct {
	ctrl     *Controller
	feed     *fakeFeed
	globe    *scene.Globe
	heat     *recordingHeat
	tooltip  *recordingTooltip
	notifier *recordingNotifier
	geocoder *fakeGeocoder
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
}

func newHarness(t *testing.T, feed *fakeFeed) *harness {
	t.Helper()
	h := &harness{
		feed:     feed,
		globe:    scene.NewGlobe(800, 600),
		heat:     &recordingHeat{Layer: heatmap.New(heatmap.DefaultConfig())},
		tooltip:  &recordingTooltip{},
		notifier: &recordingNotifier{},
		geocoder: &fakeGeocoder{},
		clock:    clockwork.NewFakeClock(),
		metrics:  observability.NewMetricsForTesting(),
	}
	h.ctrl = New(Deps{
		Feed:     feed,
		Geocoder: h.geocoder,
		Scene:    h.globe,
		Heat:     h.heat,
		Tooltip:  h.tooltip,
		Notifier: h.notifier,
		Clock:    h.clock,
		Metrics:  h.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func dayWindow(t *testing.T) domain.Window {
	t.Helper()
	w, err := domain.Canned(domain.GranularityDay)
	require.NoError(t, err)
	return w
}

// --- tests ---

func TestRefresh_DrawsStyledMarkersStrongestFirst(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))

	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))

	markers := h.globe.Markers()
	require.Len(t, markers, 3)
	assert.Equal(t, "us2", markers[0].ID)
	assert.Equal(t, "#d7191c", markers[0].Color)
	assert.InDelta(t, 18.2, markers[0].PixelSize, 1e-9)
	assert.Equal(t, domain.MarkerAlpha, markers[0].Alpha)
	assert.Contains(t, markers[0].Description, "Depth: 550.0 km")
	assert.Equal(t, "#fdae61", markers[1].Color)
	assert.Equal(t, "#1a9641", markers[2].Color)
	assert.Contains(t, markers[2].Description, "Depth: Unknown km")

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, domain.GranularityDay, snap.Window.Granularity)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.FeedEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Renders.WithLabelValues("markers")))
	assert.False(t, h.heat.Visible())
}

func TestRefresh_FramesMarkers(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))

	cam := h.globe.Camera()
	assert.NotEqual(t, orb.Point{0, 0}, cam.Center)
}

func TestRefresh_FailureKeepsPreviousState(t *testing.T) {
	feed := &fakeFeed{fn: func(_ context.Context, _ domain.Window, call int) (domain.EventSet, error) {
		if call == 1 {
			return sampleSet(), nil
		}
		return domain.EventSet{}, errors.Join(domain.ErrDataUnavailable, errors.New("missing features"))
	}}
	h := newHarness(t, feed)
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	before := h.globe.Markers()

	week, err := domain.Canned(domain.GranularityWeek)
	require.NoError(t, err)
	err = h.ctrl.Refresh(context.Background(), week)

	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Equal(t, before, h.globe.Markers())
	snap := h.ctrl.Snapshot()
	assert.Equal(t, 3, snap.Events.Len())
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, domain.GranularityDay, snap.Window.Granularity, "window unchanged on failure")
	assert.Equal(t, []string{NoticeDataUnavailable}, h.notifier.Messages())
}

func TestRefresh_NewerRequestSupersedesOlder(t *testing.T) {
	release := make(chan struct{})
	firstCancelled := make(chan struct{})
	feed := &fakeFeed{fn: func(ctx context.Context, _ domain.Window, call int) (domain.EventSet, error) {
		if call == 1 {
			select {
			case <-ctx.Done():
				close(firstCancelled)
			case <-release:
			}
			return domain.NewEventSet([]domain.Event{{ID: "old", Magnitude: 9}}), nil
		}
		return sampleSet(), nil
	}}
	h := newHarness(t, feed)
	day := dayWindow(t)

	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Refresh(context.Background(), day) }()
	require.Eventually(t, func() bool { return feed.Calls() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Refresh(context.Background(), day))

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("older fetch was not cancelled")
	}
	require.ErrorIs(t, <-errCh, ErrSuperseded)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, uint64(2), snap.Generation)
	first, _ := snap.Events.At(0)
	assert.Equal(t, "us2", first.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleResponses))
	assert.Empty(t, h.notifier.Messages())
}

func TestSetMode_RerendersWithoutFetching(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	before := h.ctrl.Snapshot().Events

	h.ctrl.SetMode(domain.ModeDensity)

	assert.Equal(t, 1, h.feed.Calls())
	assert.Empty(t, h.globe.Markers())
	assert.True(t, h.heat.Visible())
	assert.NotEmpty(t, h.heat.Points())
	assert.Equal(t, before, h.ctrl.Snapshot().Events)

	assert.Equal(t, domain.ModeMarkers, h.ctrl.ToggleMode())
	assert.Equal(t, 1, h.feed.Calls())
	assert.Len(t, h.globe.Markers(), 3)
	assert.False(t, h.heat.Visible())
	assert.Empty(t, h.heat.Points())
	assert.Equal(t, before, h.ctrl.Snapshot().Events)
}

func TestDensity_UsesMagnitudeAsWeight(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	h.globe.LookAt(scene.Camera{Center: orb.Point{121.5, 24}, Altitude: 2_000_000})

	h.ctrl.SetMode(domain.ModeDensity)

	pts := h.heat.Points()
	require.Len(t, pts, 1, "only Taiwan is on screen")
	assert.Equal(t, 4.2, pts[0].Value)
	assert.InDelta(t, 400, pts[0].X, 1e-6)
	assert.InDelta(t, 300, pts[0].Y, 1e-6)
}

func TestCameraMoved_DebouncesDensityRefresh(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	h.ctrl.SetMode(domain.ModeDensity)
	base := h.heat.Sets()

	for i := 0; i < 3; i++ {
		h.globe.LookAt(scene.Camera{Center: orb.Point{float64(i * 10), 0}, Altitude: 8_000_000})
		h.clock.Advance(100 * time.Millisecond)
	}
	h.clock.Advance(DensityDebounce - 101*time.Millisecond)
	assert.Never(t, func() bool { return h.heat.Sets() > base }, 50*time.Millisecond, 5*time.Millisecond)

	h.clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return h.heat.Sets() == base+1 }, time.Second, 5*time.Millisecond)
}

func TestCameraMoved_IgnoredInMarkerMode(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	base := h.heat.Sets()

	h.globe.LookAt(scene.Camera{Center: orb.Point{10, 0}, Altitude: 8_000_000})
	h.clock.Advance(DensityDebounce)

	assert.Never(t, func() bool { return h.heat.Sets() > base }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSummaryAndTable_ShareFlightTargets(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))

	bar := h.ctrl.SummaryBar()
	table := h.ctrl.Table()
	require.Len(t, bar.Entries, 3)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, SummaryHeader, bar.Header)
	assert.Equal(t, ViewAllLabel, bar.ViewAll)
	assert.Equal(t, "6.1 - Fiji", bar.Entries[0].Label)

	for i := range bar.Entries {
		require.NoError(t, h.ctrl.FlyTo(bar.Entries[i].Ref))
		fromBar, ok := h.globe.LastFlight()
		require.True(t, ok)

		require.NoError(t, h.ctrl.FlyTo(table.Rows[i].Ref))
		fromTable, _ := h.globe.LastFlight()
		assert.Equal(t, fromBar, fromTable)
	}

	f, _ := h.globe.LastFlight()
	assert.Equal(t, orb.Point{-122.8, 38.8}, f.Destination)
	assert.Equal(t, EventFlightAltitude, f.Altitude)
	assert.Equal(t, EventFlightPitch, f.PitchDeg)
	assert.Equal(t, 2*time.Second, f.Duration)
}

func TestSummaryBar_LimitedToTen(t *testing.T) {
	events := make([]domain.Event, 15)
	for i := range events {
		events[i] = domain.Event{ID: string(rune('a' + i)), Magnitude: float64(i) / 2, Place: domain.UnknownPlace}
	}
	bar := BuildSummaryBar(1, domain.NewEventSet(events))
	require.Len(t, bar.Entries, SummarySize)
	assert.Equal(t, "7.0 - Unknown", bar.Entries[0].Label)
}

func TestEmptySnapshot(t *testing.T) {
	h := newHarness(t, staticFeed(domain.NewEventSet(nil)))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)), "framing failure is not an error")

	bar := h.ctrl.SummaryBar()
	assert.Equal(t, SummaryHeader, bar.Header)
	assert.Empty(t, bar.Entries)
	assert.Empty(t, bar.ViewAll)

	table := h.ctrl.Table()
	assert.Empty(t, table.Rows)
	assert.Equal(t, NoDataMessage, table.Placeholder)
}

func TestTable_Rows(t *testing.T) {
	table := BuildTable(7, sampleSet())
	require.Len(t, table.Rows, 3)
	assert.Equal(t, TableRow{
		Magnitude: "1.8",
		Depth:     "Unknown",
		Place:     "The Geysers, CA",
		Time:      "2023-11-14T22:16:40 UTC",
		Ref:       EventRef{Generation: 7, Index: 2},
	}, table.Rows[2])
}

func TestFlyTo_RejectsStaleAndOutOfRange(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	old := h.ctrl.SummaryBar().Entries[0].Ref
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))

	require.ErrorIs(t, h.ctrl.FlyTo(old), domain.ErrStaleSnapshot)
	require.ErrorIs(t, h.ctrl.FlyTo(EventRef{Generation: 2, Index: 3}), domain.ErrIndexOutOfRange)
	require.ErrorIs(t, h.ctrl.FlyTo(EventRef{Generation: 2, Index: -1}), domain.ErrIndexOutOfRange)
	_, flown := h.globe.LastFlight()
	assert.False(t, flown)
}

func TestSearch_FliesToMatch(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	h.geocoder.res = domain.GeocodingResult{Point: orb.Point{139.69, 35.68}, DisplayName: "Tokyo"}

	require.NoError(t, h.ctrl.Search(context.Background(), "  Tokyo "))

	f, ok := h.globe.LastFlight()
	require.True(t, ok)
	assert.Equal(t, orb.Point{139.69, 35.68}, f.Destination)
	assert.Equal(t, SearchAltitude, f.Altitude)
	assert.Equal(t, EventFlightPitch, f.PitchDeg)
}

func TestSearch_EmptyQueryIsNoop(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Search(context.Background(), "   "))
	assert.Equal(t, 0, h.geocoder.calls)
	assert.Empty(t, h.notifier.Messages())
}

func TestSearch_FailuresLeaveCamera(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{"not found", domain.ErrGeocodeNotFound, NoticeLocationNotFound},
		{"unavailable", errors.Join(domain.ErrGeocodeUnavailable, errors.New("timeout")), NoticeSearchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, staticFeed(sampleSet()))
			h.geocoder.err = tt.err
			before := h.globe.Camera()

			err := h.ctrl.Search(context.Background(), "Atlantis")

			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, before, h.globe.Camera())
			assert.Equal(t, []string{tt.notice}, h.notifier.Messages())
		})
	}
}

func TestSearchFlightAltitude(t *testing.T) {
	assert.Equal(t, SearchAltitude, SearchFlightAltitude(domain.GeocodingResult{}))

	tiny := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.001, 0.001}}
	assert.Equal(t, minSearchAltitude, SearchFlightAltitude(domain.GeocodingResult{Bound: &tiny}))

	country := orb.Bound{Min: orb.Point{5, 45}, Max: orb.Point{10, 48}}
	alt := SearchFlightAltitude(domain.GeocodingResult{Bound: &country})
	assert.Greater(t, alt, 500_000.0)
	assert.Less(t, alt, 1_000_000.0)
}

func TestHover_ShowsAndHidesTooltip(t *testing.T) {
	h := newHarness(t, staticFeed(sampleSet()))
	require.NoError(t, h.ctrl.Refresh(context.Background(), dayWindow(t)))
	h.globe.LookAt(scene.Camera{Center: orb.Point{121.5, 24}, Altitude: 2_000_000})

	x, y, ok := h.globe.Project(orb.Point{121.5, 24})
	require.True(t, ok)

	h.ctrl.PointerMove(x, y)
	assert.True(t, h.tooltip.visible)
	assert.Contains(t, h.tooltip.text, "Location: Taiwan")
	assert.Equal(t, x+TooltipOffset, h.tooltip.x)
	assert.Equal(t, y+TooltipOffset, h.tooltip.y)
	assert.Equal(t, Hovering, h.ctrl.Hover())

	h.ctrl.PointerMove(10, 10)
	assert.False(t, h.tooltip.visible)
	assert.Equal(t, Idle, h.ctrl.Hover())

	h.ctrl.PointerMove(x, y)
	h.ctrl.PointerDown()
	assert.False(t, h.tooltip.visible)
	assert.Equal(t, Idle, h.ctrl.Hover())
}
