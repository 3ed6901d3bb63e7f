// Command quakectl drives the globe controller from a terminal. It fetches a
// window from the USGS feed, prints the summary bar and optionally the full
// table, and can fly to an event, search a location, or list density hotspots
// against a headless globe.
//
// Usage:
//
//	go run ./cmd/quakectl -window week -table
//	go run ./cmd/quakectl -days 10 -density -hotspots 5
//	go run ./cmd/quakectl -search "Anchorage, Alaska"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/quake-globe/internal/adapter/geocache"
	"github.com/couchcryptid/quake-globe/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-globe/internal/adapter/nominatim"
	"github.com/couchcryptid/quake-globe/internal/adapter/usgs"
	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/heatmap"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/scene"
	"github.com/couchcryptid/quake-globe/internal/viewer"
)

type options struct {
	window   string
	days     int
	density  bool
	table    bool
	fly      int
	search   string
	hotspots int
	width    float64
	height   float64
	verbose  bool

	usgsURL      string
	geocoder     string
	nominatimURL string
	mapboxToken  string
	timeout      time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "quakectl:", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("quakectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.window, "window", "day", "canned feed: hour, day, week or month")
	fs.IntVar(&o.days, "days", 0, "fetch the last N days instead of a canned feed")
	fs.BoolVar(&o.density, "density", false, "render the density overlay instead of markers")
	fs.BoolVar(&o.table, "table", false, "print the full event table")
	fs.IntVar(&o.fly, "fly", -1, "fly to the event at this table index")
	fs.StringVar(&o.search, "search", "", "geocode a location and fly to it")
	fs.IntVar(&o.hotspots, "hotspots", 0, "with -density, list the N strongest hotspots")
	fs.Float64Var(&o.width, "width", 1280, "viewport width in pixels")
	fs.Float64Var(&o.height, "height", 720, "viewport height in pixels")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")

	fs.StringVar(&o.usgsURL, "usgs-url", sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://earthquake.usgs.gov"), "USGS base URL")
	fs.StringVar(&o.geocoder, "geocoder", sharedcfg.EnvOrDefault("GEOCODER", "nominatim"), "nominatim or mapbox")
	fs.StringVar(&o.nominatimURL, "nominatim-url", sharedcfg.EnvOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"), "Nominatim base URL")
	fs.StringVar(&o.mapboxToken, "mapbox-token", os.Getenv("MAPBOX_TOKEN"), "Mapbox access token")
	fs.DurationVar(&o.timeout, "timeout", 15*time.Second, "upstream request timeout")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	o.usgsURL = strings.TrimRight(o.usgsURL, "/")
	o.nominatimURL = strings.TrimRight(o.nominatimURL, "/")
	return o, nil
}

func (o options) resolveWindow() (domain.Window, error) {
	if o.days > 0 {
		return domain.LastDays(o.days)
	}
	return domain.ParseWindow(o.window)
}

func (o options) newGeocoder(metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, error) {
	var inner domain.Geocoder
	switch strings.ToLower(o.geocoder) {
	case "nominatim":
		inner = nominatim.NewClient(o.nominatimURL, o.timeout, metrics, logger)
	case "mapbox":
		if o.mapboxToken == "" {
			return nil, errors.New("-geocoder mapbox needs -mapbox-token or MAPBOX_TOKEN")
		}
		inner = mapbox.NewClient(o.mapboxToken, o.timeout, metrics, logger)
	default:
		return nil, fmt.Errorf("unknown geocoder %q", o.geocoder)
	}
	return geocache.New(inner, 16, metrics, geocache.WithLookupTimeout(o.timeout)), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	win, err := o.resolveWindow()
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewUnregisteredMetrics()
	out := newPrinter(stdout)

	var geocoder domain.Geocoder
	if o.search != "" {
		if geocoder, err = o.newGeocoder(metrics, logger); err != nil {
			return err
		}
	}

	globe := scene.NewGlobe(o.width, o.height)
	layer := heatmap.New(heatmap.DefaultConfig())
	ctrl := viewer.New(viewer.Deps{
		Feed:     usgs.NewClient(o.usgsURL, o.timeout, metrics, logger),
		Geocoder: geocoder,
		Scene:    globe,
		Heat:     layer,
		Notifier: newPrinter(stderr),
		Metrics:  metrics,
		Logger:   logger,
	})
	defer ctrl.Close()

	if err := ctrl.Refresh(ctx, win); err != nil {
		return err
	}
	// Markers are drawn first so the camera frames the events before the
	// density overlay is projected.
	if o.density {
		ctrl.SetMode(domain.ModeDensity)
	}

	snap := ctrl.Snapshot()
	out.header(snap)
	out.summary(ctrl.SummaryBar(), snap.Events)
	if o.table {
		out.table(ctrl.Table(), snap.Events)
	}
	if o.density && o.hotspots > 0 {
		out.hotspots(layer.Hotspots(o.hotspots), snap.Events, globe)
	}

	if o.fly >= 0 {
		if err := ctrl.FlyTo(viewer.EventRef{Generation: snap.Generation, Index: o.fly}); err != nil {
			return fmt.Errorf("fly to %d: %w", o.fly, err)
		}
		out.camera("event", globe.Camera())
	}
	if o.search != "" {
		if err := ctrl.Search(ctx, o.search); err != nil {
			return fmt.Errorf("search %q: %w", o.search, err)
		}
		out.camera(o.search, globe.Camera())
	}
	return nil
}
