package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/quake-globe/internal/adapter/geocache"
	httpadapter "github.com/couchcryptid/quake-globe/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-globe/internal/adapter/kafka"
	"github.com/couchcryptid/quake-globe/internal/adapter/mapbox"
	"github.com/couchcryptid/quake-globe/internal/adapter/nominatim"
	"github.com/couchcryptid/quake-globe/internal/adapter/usgs"
	"github.com/couchcryptid/quake-globe/internal/config"
	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/pipeline"
	"github.com/couchcryptid/quake-globe/internal/scene"
	"github.com/couchcryptid/quake-globe/internal/viewer"
	"github.com/couchcryptid/quake-globe/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer observability.ShutdownTracing(shutdownTracing, logger)

	metrics := observability.NewMetrics()
	geocoder := newGeocoder(cfg, metrics, logger)

	ctrl := viewer.New(viewer.Deps{
		Feed:     usgs.NewClient(cfg.USGSBaseURL, cfg.USGSTimeout, metrics, logger),
		Geocoder: geocoder,
		Scene:    scene.NewGlobe(1280, 720),
		Metrics:  metrics,
		Logger:   logger,
	})
	defer ctrl.Close()

	var sink pipeline.SnapshotSink
	if cfg.PublishEnabled() {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		sink = publisher
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	p := pipeline.New(ctrl, sink, cfg.DefaultWindow, cfg.FeedRefreshInterval, logger, metrics)

	// The browser only searches on its own when it would reach the same provider.
	var browserNominatim string
	if cfg.Geocoder == config.GeocoderNominatim {
		browserNominatim = cfg.NominatimBaseURL
	}
	page := web.NewHandler(web.Options{
		CesiumToken:      cfg.CesiumToken,
		USGSBaseURL:      cfg.USGSBaseURL,
		NominatimBaseURL: browserNominatim,
		DefaultWindow:    cfg.DefaultWindow,
		Geocoder:         geocoder,
	}, ctrl, metrics, logger)

	pageSrv := httpadapter.NewPageServer(cfg.HTTPAddr, page, logger)
	adminSrv := httpadapter.NewAdminServer(cfg.AdminAddr, p, logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*httpadapter.Server{pageSrv, adminSrv} {
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			pageSrv.Shutdown(shutdownCtx),
			adminSrv.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

// newGeocoder builds the configured provider behind the LRU cache.
func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	var inner domain.Geocoder
	switch cfg.Geocoder {
	case config.GeocoderMapbox:
		inner = mapbox.NewClient(cfg.MapboxToken, cfg.GeocodeTimeout, metrics, logger)
	default:
		inner = nominatim.NewClient(cfg.NominatimBaseURL, cfg.GeocodeTimeout, metrics, logger)
	}
	logger.Info("geocoding enabled", "provider", cfg.Geocoder, "cache_size", cfg.GeocodeCacheSize, "cache_ttl", cfg.GeocodeCacheTTL, "timeout", cfg.GeocodeTimeout)
	return geocache.New(inner, cfg.GeocodeCacheSize, metrics,
		geocache.WithTTL(cfg.GeocodeCacheTTL),
		geocache.WithLookupTimeout(cfg.GeocodeTimeout),
	)
}
