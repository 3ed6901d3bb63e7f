// Package web renders the globe page. The page is a single HTML document
// with the Cesium token, the current snapshot and the client script inlined,
// so GET / is the only route the public listener needs.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/heatmap"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/viewer"
)

const tracerName = "github.com/couchcryptid/quake-globe/internal/web"

//go:embed templates
var templates embed.FS

// Basemaps offered by the page selector, in display order.
var Basemaps = []string{"Default", "OpenStreetMap"}

// SnapshotSource supplies the snapshot rendered into the page.
// *viewer.Controller satisfies it.
type SnapshotSource interface {
	Snapshot() viewer.Snapshot
}

// Options configure the page.
type Options struct {
	CesiumToken string
	USGSBaseURL string

	// NominatimBaseURL lets the page search Nominatim directly. Empty sends
	// searches through the ?q= deep link so they use Geocoder.
	NominatimBaseURL string
	DefaultWindow    domain.Window

	// Geocoder resolves the ?q= deep link. Nil disables it.
	Geocoder domain.Geocoder
}

// Handler serves the globe page.
type Handler struct {
	tmpl    *template.Template
	opts    Options
	source  SnapshotSource
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler parses the embedded templates. It panics if they are invalid,
// which can only happen at build time.
func NewHandler(opts Options, source SnapshotSource, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	tmpl := template.Must(template.New("index.html.tmpl").ParseFS(templates, "templates/*.tmpl"))
	return &Handler{tmpl: tmpl, opts: opts, source: source, metrics: metrics, logger: logger}
}

type bandView struct {
	Min   *float64 `json:"min"` // nil for the open lower band
	Color string   `json:"color"`
	Label string   `json:"label"`
}

type windowView struct {
	Slider int    `json:"slider"`
	Label  string `json:"label"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"` // inclusive, as shown in the date picker
}

// clientConfig is handed to the page script as a single JSON object.
type clientConfig struct {
	Token         string            `json:"token"`
	USGSBaseURL   string            `json:"usgsBaseURL"`
	NominatimURL  string            `json:"nominatimURL,omitempty"`
	Loaded        bool              `json:"loaded"`
	Generation    uint64            `json:"generation"`
	Window        windowView        `json:"window"`
	Events        []domain.Event    `json:"events"`
	Bands         []bandView        `json:"bands"`
	MarkerAlpha   float64           `json:"markerAlpha"`
	Heatmap       heatmapConfig     `json:"heatmap"`
	MaxRangeDays  int               `json:"maxRangeDays"`
	SummarySize   int               `json:"summarySize"`
	DebounceMs    int64             `json:"debounceMs"`
	EventAltitude float64           `json:"eventAltitude"`
	SearchAlt     float64           `json:"searchAltitude"`
	FlightPitch   float64           `json:"flightPitch"`
	FlightSecs    float64           `json:"flightSeconds"`
	TooltipOffset float64           `json:"tooltipOffset"`
	Notices       map[string]string `json:"notices"`
	InitialView   *cameraView       `json:"initialView,omitempty"`
	Notice        string            `json:"notice,omitempty"`
}

// cameraView is the initial camera for a ?q= deep link.
type cameraView struct {
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Altitude float64 `json:"altitude"`
	Name     string  `json:"name"`
}

type heatmapConfig struct {
	Radius     float64           `json:"radius"`
	MaxOpacity float64           `json:"maxOpacity"`
	MinOpacity float64           `json:"minOpacity"`
	Blur       float64           `json:"blur"`
	Max        float64           `json:"max"`
	Gradient   map[string]string `json:"gradient"`
}

type pageData struct {
	Query    string
	Window   windowView
	Legend   []bandView
	Basemaps []string
	Summary  viewer.SummaryBar
	Table    viewer.Table
	Client   clientConfig
}

// ServeHTTP renders the page for the current snapshot. The template is
// executed into a buffer so a failure yields a clean 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := observability.Tracer(tracerName).Start(ctx, "web.RenderPage")
	defer span.End()

	data := h.pageData()
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		h.resolveQuery(ctx, q, &data)
	}
	span.SetAttributes(
		attribute.Int("page.events", len(data.Table.Rows)),
		attribute.Bool("page.loaded", data.Client.Loaded),
	)

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		observability.RecordError(span, err)
		h.logger.Error("render page failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.metrics.PageRenders.Inc()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("write page failed", "error", err, "remote", r.RemoteAddr)
	}
}

// resolveQuery geocodes a deep-link query into the page's initial camera.
// Failures only set the notice the page shows on load.
func (h *Handler) resolveQuery(ctx context.Context, q string, data *pageData) {
	data.Query = q
	if h.opts.Geocoder == nil {
		data.Client.Notice = viewer.NoticeSearchFailed
		return
	}
	res, err := h.opts.Geocoder.Search(ctx, q)
	switch {
	case err == nil:
		data.Client.InitialView = &cameraView{
			Lon:      res.Point.Lon(),
			Lat:      res.Point.Lat(),
			Altitude: viewer.SearchFlightAltitude(res),
			Name:     res.DisplayName,
		}
	case errors.Is(err, domain.ErrGeocodeNotFound):
		data.Client.Notice = viewer.NoticeLocationNotFound
	default:
		h.logger.Warn("deep-link search failed", "query", q, "error", err)
		data.Client.Notice = viewer.NoticeSearchFailed
	}
}

func (h *Handler) pageData() pageData {
	snap := h.source.Snapshot()
	win := h.opts.DefaultWindow
	if cur, err := win.Current(); err == nil {
		win = cur
	}
	if snap.Loaded {
		win = snap.Window
	}
	wv := newWindowView(win)
	bands := newBandViews()

	events := snap.Events.Events()
	hm := heatmap.DefaultConfig()
	gradient := make(map[string]string, len(hm.Gradient))
	for _, s := range hm.Gradient {
		gradient[formatStop(s.At)] = s.Color
	}

	return pageData{
		Window:   wv,
		Legend:   bands,
		Basemaps: Basemaps,
		Summary:  viewer.BuildSummaryBar(snap.Generation, snap.Events),
		Table:    viewer.BuildTable(snap.Generation, snap.Events),
		Client: clientConfig{
			Token:        h.opts.CesiumToken,
			USGSBaseURL:  h.opts.USGSBaseURL,
			NominatimURL: h.opts.NominatimBaseURL,
			Loaded:       snap.Loaded,
			Generation:   snap.Generation,
			Window:       wv,
			Events:       events,
			Bands:        bands,
			MarkerAlpha:  domain.MarkerAlpha,
			Heatmap: heatmapConfig{
				Radius:     hm.Radius,
				MaxOpacity: hm.MaxOpacity,
				MinOpacity: hm.MinOpacity,
				Blur:       hm.Blur,
				Max:        heatmap.DefaultMax,
				Gradient:   gradient,
			},
			MaxRangeDays:  domain.MaxRangeDays,
			SummarySize:   viewer.SummarySize,
			DebounceMs:    viewer.DensityDebounce.Milliseconds(),
			EventAltitude: viewer.EventFlightAltitude,
			SearchAlt:     viewer.SearchAltitude,
			FlightPitch:   viewer.EventFlightPitch,
			FlightSecs:    viewer.EventFlightDuration.Seconds(),
			TooltipOffset: viewer.TooltipOffset,
			Notices: map[string]string{
				"dataUnavailable":  viewer.NoticeDataUnavailable,
				"locationNotFound": viewer.NoticeLocationNotFound,
				"searchFailed":     viewer.NoticeSearchFailed,
				"noData":           viewer.NoDataMessage,
				"summaryHeader":    viewer.SummaryHeader,
				"viewAll":          viewer.ViewAllLabel,
			},
		},
	}
}

func newWindowView(w domain.Window) windowView {
	v := windowView{Slider: w.SliderPosition(), Label: w.Label()}
	if w.IsRange() {
		v.Start = w.Start.Format(domain.DateLayout)
		v.End = w.End.AddDate(0, 0, -1).Format(domain.DateLayout)
	}
	return v
}

func newBandViews() []bandView {
	out := make([]bandView, len(domain.Bands))
	for i, b := range domain.Bands {
		out[i] = bandView{Color: b.Color, Label: b.Label}
		if !math.IsInf(b.Min, -1) {
			m := b.Min
			out[i].Min = &m
		}
	}
	return out
}

func formatStop(at float64) string {
	return strconv.FormatFloat(at, 'f', 1, 64)
}
