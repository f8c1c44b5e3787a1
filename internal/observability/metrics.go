package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cap_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert pipeline.
type Metrics struct {
	// Ingestion metrics.
	FeedsFetched  *prometheus.CounterVec   // labels: outcome={success,error}
	FetchDuration *prometheus.HistogramVec // labels: target={feed,alert}
	DedupClaims   *prometheus.CounterVec   // labels: result={new,seen}
	DedupCache    *prometheus.CounterVec   // labels: result={hit,miss}
	AlertsParsed  prometheus.Counter
	IngestErrors  *prometheus.CounterVec // labels: kind={fetch,parse,store,other}

	// Filtering and output metrics.
	AlertsFiltered    *prometheus.CounterVec // labels: filter={severity,boundary}, outcome={kept,dropped}
	RenderDuration    prometheus.Histogram
	MessagesPublished *prometheus.CounterVec // labels: sink={stdout,kafka}

	// Run loop metrics.
	Runs          *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration   prometheus.Histogram
	LastSuccess   prometheus.Gauge
	PollerRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_fetched_total",
			Help:      "Feed fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "HTTP fetch duration for feeds and CAP documents.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"target"}),
		DedupClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_claims_total",
			Help:      "Dedup claims by result.",
		}, []string{"result"}),
		DedupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_cache_total",
			Help:      "In-memory dedup cache lookups by result.",
		}, []string{"result"}),
		AlertsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_parsed_total",
			Help:      "Total CAP documents parsed.",
		}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Ingestion failures by error kind.",
		}, []string{"kind"}),
		AlertsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_filtered_total",
			Help:      "Alerts kept or dropped by each filter.",
		}, []string{"filter", "outcome"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of map composition and rasterization.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Output messages published by sink.",
		}, []string{"sink"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete ingest-filter-render-publish run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 when the polling loop is active, 0 when shut down.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FeedsFetched,
		m.FetchDuration,
		m.DedupClaims,
		m.DedupCache,
		m.AlertsParsed,
		m.IngestErrors,
		m.AlertsFiltered,
		m.RenderDuration,
		m.MessagesPublished,
		m.Runs,
		m.RunDuration,
		m.LastSuccess,
		m.PollerRunning,
	}
}
