// Package viewer holds the ViewRefreshController: the single owner of the
// current EventSet, the selected window and render mode, and every
// interaction that reads or redraws them.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/heatmap"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/scene"
)

// DensityDebounce is the quiet period after the last camera movement before
// the density overlay is recomputed.
const DensityDebounce = 500 * time.Millisecond

const tracerName = "github.com/couchcryptid/quake-globe/internal/viewer"

// Notices shown to the user.
const (
	NoticeDataUnavailable  = "Failed to load earthquake data. Please try again later."
	NoticeLocationNotFound = "Location not found."
	NoticeSearchFailed     = "Failed to search location. Please try again later."
)

// ErrSuperseded is returned by Refresh when a newer Refresh replaced it
// before its response arrived. The response is discarded.
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// Scene is the drawing surface. *scene.Globe satisfies it.
type Scene interface {
	RemoveAll()
	Add(m scene.Marker)
	Frame() error
	FlyTo(f scene.Flight)
	Project(p orb.Point) (x, y float64, ok bool)
	Pick(x, y float64) (scene.Marker, bool)
	OnCameraMove(fn func())
}

// HeatLayer is the density overlay. *heatmap.Layer satisfies it.
type HeatLayer interface {
	SetData(max float64, points []heatmap.Point)
	Clear()
	SetVisible(v bool)
}

// Tooltip is the hover popup.
type Tooltip interface {
	Show(text string, x, y float64)
	Hide()
}

// Notifier surfaces a user-visible notice.
type Notifier interface {
	Notify(msg string)
}

// Deps are the collaborators of a Controller. Feed and Scene are required;
// the rest fall back to inert defaults.
type Deps struct {
	Feed     domain.Feed
	Geocoder domain.Geocoder
	Scene    Scene
	Heat     HeatLayer
	Tooltip  Tooltip
	Notifier Notifier
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// EventRef points at one event of one snapshot.
type EventRef struct {
	Generation uint64 `json:"gen"`
	Index      int    `json:"idx"`
}

// Snapshot is a read-only view of the controller state.
type Snapshot struct {
	Generation uint64
	Window     domain.Window
	Mode       domain.RenderMode
	Events     domain.EventSet
	Loaded     bool
}

// Controller coordinates fetching, rendering and interaction for one view.
type Controller struct {
	id       uuid.UUID
	feed     domain.Feed
	geocoder domain.Geocoder
	scene    Scene
	heat     HeatLayer
	tooltip  Tooltip
	notifier Notifier
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	requests   uint64 // last issued fetch
	generation uint64 // fetch that produced events
	events     domain.EventSet
	loaded     bool
	window     domain.Window
	mode       domain.RenderMode
	cancel     context.CancelFunc
	hover      HoverState

	// debounceMu is separate from mu: camera listeners fire while mu is held.
	debounceMu sync.Mutex
	debounce   clockwork.Timer
}

// New creates a Controller and subscribes it to camera movement.
func New(d Deps) *Controller {
	c := &Controller{
		id:       uuid.New(),
		feed:     d.Feed,
		geocoder: d.Geocoder,
		scene:    d.Scene,
		heat:     d.Heat,
		tooltip:  d.Tooltip,
		notifier: d.Notifier,
		clock:    d.Clock,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
	if c.heat == nil {
		c.heat = heatmap.New(heatmap.DefaultConfig())
	}
	if c.tooltip == nil {
		c.tooltip = nopTooltip{}
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetricsForTesting()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session", c.id.String())
	c.scene.OnCameraMove(c.CameraMoved)
	return c
}

// ID identifies this controller in logs.
func (c *Controller) ID() uuid.UUID { return c.id }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Generation: c.generation,
		Window:     c.window,
		Mode:       c.mode,
		Events:     c.events,
		Loaded:     c.loaded,
	}
}

// Refresh fetches the events for w and, if no newer Refresh has started in
// the meantime, replaces the snapshot and redraws. A newer Refresh cancels
// this one's request. On failure the previous snapshot and drawing are kept
// and a notice is shown.
func (c *Controller) Refresh(ctx context.Context, w domain.Window) error {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "viewer.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("feed.window", w.String()))

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.requests++
	req := c.requests
	c.mu.Unlock()
	defer cancel()

	set, err := c.feed.Fetch(fetchCtx, w)

	c.mu.Lock()
	if req != c.requests {
		c.mu.Unlock()
		c.metrics.StaleResponses.Inc()
		c.logger.Debug("discarding superseded feed response", "window", w.String(), "request", req)
		span.SetAttributes(attribute.Bool("refresh.superseded", true))
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("feed fetch failed, keeping previous snapshot", "window", w.String(), "error", err)
		c.notifier.Notify(NoticeDataUnavailable)
		observability.RecordError(span, err)
		return err
	}

	c.generation = req
	c.events = set
	c.window = w
	c.loaded = true
	c.metrics.FeedEvents.Set(float64(set.Len()))
	c.render()
	c.mu.Unlock()

	span.SetAttributes(attribute.Int64("snapshot.generation", int64(req)))
	c.logger.Info("snapshot replaced", "window", w.String(), "events", set.Len(), "generation", req)
	return nil
}

// SetMode switches render mode and redraws the current snapshot without
// fetching.
func (c *Controller) SetMode(m domain.RenderMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return
	}
	c.mode = m
	if c.loaded {
		c.render()
	}
}

// ToggleMode flips the render mode and returns the new one.
func (c *Controller) ToggleMode() domain.RenderMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = c.mode.Toggle()
	if c.loaded {
		c.render()
	}
	return c.mode
}

// CameraMoved schedules a density recompute after DensityDebounce. Calls
// arriving within the quiet period restart it.
func (c *Controller) CameraMoved() {
	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = c.clock.AfterFunc(DensityDebounce, c.refreshDensity)
}

// Close stops any pending debounce and in-flight fetch.
func (c *Controller) Close() {
	c.debounceMu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounceMu.Unlock()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

func (c *Controller) refreshDensity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != domain.ModeDensity || !c.loaded {
		return
	}
	c.heat.SetData(heatmap.DefaultMax, c.densityPoints())
}

// render clears and redraws. Callers hold mu.
func (c *Controller) render() {
	c.metrics.Renders.WithLabelValues(c.mode.String()).Inc()
	c.scene.RemoveAll()
	c.heat.Clear()

	if c.mode == domain.ModeDensity {
		c.heat.SetData(heatmap.DefaultMax, c.densityPoints())
		c.heat.SetVisible(true)
		return
	}

	c.heat.SetVisible(false)
	for i, e := range c.events.Events() {
		c.scene.Add(markerFor(i, e))
	}
	if err := c.scene.Frame(); err != nil {
		if errors.Is(err, domain.ErrRenderTargetMissing) {
			c.logger.Debug("camera framing skipped", "error", err)
			return
		}
		c.logger.Warn("camera framing failed", "error", err)
	}
}

func (c *Controller) densityPoints() []heatmap.Point {
	events := c.events.Events()
	pts := make([]heatmap.Point, 0, len(events))
	for _, e := range events {
		x, y, ok := c.scene.Project(e.Point())
		if !ok {
			continue
		}
		pts = append(pts, heatmap.Point{X: x, Y: y, Value: e.Magnitude})
	}
	return pts
}

func markerFor(i int, e domain.Event) scene.Marker {
	band := domain.BandFor(e.Magnitude)
	return scene.Marker{
		ID:          e.ID,
		Position:    e.Point(),
		PixelSize:   domain.MarkerSize(e.Magnitude),
		Color:       band.Color,
		Alpha:       domain.MarkerAlpha,
		Description: domain.Describe(e),
		Index:       i,
	}
}

type nopTooltip struct{}

func (nopTooltip) Show(string, float64, float64) {}
func (nopTooltip) Hide()                         {}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}
