// Package metrics exposes Prometheus instrumentation for ingestion runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amishk599/jobinbox/internal/model"
)

const namespace = "jobinbox"

// Metrics holds the run and source collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	RunInProgress     prometheus.Gauge
	SourceListings    *prometheus.CounterVec
	SourceFailures    *prometheus.CounterVec
	ListingsCommitted prometheus.Counter
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		}),
		RunInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while an ingestion run is active.",
		}),
		SourceListings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_listings_total",
			Help:      "Listings returned by each source after filtering.",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Source fetches that failed outright.",
		}, []string{"source"}),
		ListingsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_committed_total",
			Help:      "New listings written to the store.",
		}),
	}
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunInProgress.Set(1)
}

// RunFinished records the outcome and duration of a run.
func (m *Metrics) RunFinished(status model.RunStatus, took time.Duration, committed int) {
	if m == nil {
		return
	}
	m.RunInProgress.Set(0)
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(took.Seconds())
	m.ListingsCommitted.Add(float64(committed))
}

func (m *Metrics) SourceFetched(src model.Source, n int) {
	if m == nil {
		return
	}
	m.SourceListings.WithLabelValues(string(src)).Add(float64(n))
}

func (m *Metrics) SourceFailed(src model.Source) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(string(src)).Inc()
}
