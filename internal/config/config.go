package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/quake-globe/internal/domain"
)

// Geocoder providers.
const (
	GeocoderNominatim = "nominatim"
	GeocoderMapbox    = "mapbox"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	CesiumToken     string
	HTTPAddr        string
	AdminAddr       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// USGS feed configuration.
	USGSBaseURL         string
	USGSTimeout         time.Duration
	DefaultWindow       domain.Window
	FeedRefreshInterval time.Duration

	// Geocoding configuration.
	Geocoder         string
	NominatimBaseURL string
	MapboxToken      string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
	GeocodeCacheTTL  time.Duration

	// Snapshot publishing; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Tracing; a no-op provider is installed when disabled.
	TracingEnabled     bool
	TracingExporter    string // stdout | otlp
	TracingEndpoint    string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables, applying defaults where unset.
// A missing CESIUM_ION_ACCESS_TOKEN yields an error wrapping domain.ErrConfigMissing.
func Load() (*Config, error) {
	token := strings.TrimSpace(os.Getenv("CESIUM_ION_ACCESS_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("CESIUM_ION_ACCESS_TOKEN is not set: %w", domain.ErrConfigMissing)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	usgsTimeout, err := parsePositiveDuration("USGS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("FEED_REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parsePositiveDuration("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	geocodeCacheTTL, err := parsePositiveDuration("GEOCODE_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	geocodeCacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	window, err := domain.ParseWindow(sharedcfg.EnvOrDefault("FEED_DEFAULT_WINDOW", "day"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_DEFAULT_WINDOW: %w", err)
	}

	cfg := &Config{
		CesiumToken:     token,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		AdminAddr:       sharedcfg.EnvOrDefault("ADMIN_ADDR", ":9090"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		USGSBaseURL:         strings.TrimRight(sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://earthquake.usgs.gov"), "/"),
		USGSTimeout:         usgsTimeout,
		DefaultWindow:       window,
		FeedRefreshInterval: refreshInterval,

		Geocoder:         strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER", GeocoderNominatim)),
		NominatimBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"), "/"),
		MapboxToken:      os.Getenv("MAPBOX_TOKEN"),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: geocodeCacheSize,
		GeocodeCacheTTL:  geocodeCacheTTL,

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-snapshots"),

		TracingEnabled:     strings.EqualFold(os.Getenv("TRACING_ENABLED"), "true"),
		TracingExporter:    strings.ToLower(sharedcfg.EnvOrDefault("TRACING_EXPORTER", "stdout")),
		TracingEndpoint:    sharedcfg.EnvOrDefault("OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRatio: parseSampleRatio(),
	}

	switch cfg.Geocoder {
	case GeocoderNominatim:
	case GeocoderMapbox:
		if cfg.MapboxToken == "" {
			return nil, errors.New("GEOCODER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER %q", cfg.Geocoder)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.TracingEnabled && cfg.TracingExporter != "stdout" && cfg.TracingExporter != "otlp" {
		return nil, fmt.Errorf("invalid TRACING_EXPORTER %q", cfg.TracingExporter)
	}

	return cfg, nil
}

// PublishEnabled reports whether snapshots are published to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault("GEOCODE_CACHE_SIZE", "1000"))
	if err != nil || n <= 0 {
		return 0, errors.New("invalid GEOCODE_CACHE_SIZE: must be a positive integer")
	}
	return n, nil
}

// parseSampleRatio falls back to sampling everything on a missing or out-of-range value.
func parseSampleRatio() float64 {
	if s := os.Getenv("TRACING_SAMPLE_RATIO"); s != "" {
		if r, err := strconv.ParseFloat(s, 64); err == nil && r >= 0 && r <= 1 {
			return r
		}
	}
	return 1
}
