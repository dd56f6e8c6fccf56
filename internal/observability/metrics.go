package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the refresh pipeline.
type Metrics struct {
	RefreshRuns     *prometheus.CounterVec // label: outcome={success,error,busy}
	FetchErrors     prometheus.Counter
	RecordsInserted prometheus.Counter
	RunDuration     prometheus.Histogram
	LastRefresh     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RefreshRuns,
		m.FetchErrors,
		m.RecordsInserted,
		m.RunDuration,
		m.LastRefresh,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sismo_sync",
			Name:      "refresh_runs_total",
			Help:      "Refresh runs by outcome.",
		}, []string{"outcome"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sismo_sync",
			Name:      "fetch_errors_total",
			Help:      "Per-year fetch failures recorded in run summaries.",
		}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sismo_sync",
			Name:      "records_inserted_total",
			Help:      "Normalized records written to the sismos table.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sismo_sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-replace run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sismo_sync",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
	}
}
