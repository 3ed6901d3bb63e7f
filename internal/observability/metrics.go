package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/quake-globe/internal/domain"
)

const namespace = "quake_globe"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Feed metrics.
	FeedFetches       *prometheus.CounterVec   // labels: window={hour,day,week,month,range}, outcome={success,error}
	FeedFetchDuration *prometheus.HistogramVec // labels: window
	FeedEvents        prometheus.Gauge
	StaleResponses    prometheus.Counter

	// Rendering and page metrics.
	Renders     *prometheus.CounterVec // labels: mode={markers,density}
	PageRenders prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={success,not_found,error}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,negative_hit,miss,expired}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider

	// Snapshot publishing metrics.
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.FeedFetches,
		m.FeedFetchDuration,
		m.FeedEvents,
		m.StaleResponses,
		m.Renders,
		m.PageRenders,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.SnapshotsPublished,
		m.PublishErrors,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics for short-lived processes that have
// no scrape endpoint.
func NewUnregisteredMetrics() *Metrics {
	return NewMetricsForTesting()
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "USGS feed fetches by window and outcome.",
		}, []string{"window", "outcome"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "USGS feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"window"}),
		FeedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_events",
			Help:      "Number of events in the current snapshot.",
		}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_stale_responses_total",
			Help:      "Feed responses discarded because a newer refresh superseded them.",
		}),
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Scene renders by mode.",
		}, []string{"mode"}),
		PageRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_renders_total",
			Help:      "Globe pages served.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshots published to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publish_errors_total",
			Help:      "Snapshot publish failures.",
		}),
	}
}

// WindowLabel collapses explicit ranges into a single label value so metric
// cardinality stays bounded.
func WindowLabel(w domain.Window) string {
	if w.IsRange() {
		return "range"
	}
	return string(w.Granularity)
}
