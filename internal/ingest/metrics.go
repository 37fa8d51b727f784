package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch outcomes recorded by Metrics.
const (
	OutcomeAccepted  = "accepted"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Metrics provides observability for ingestion.
type Metrics struct {
	Batches          *prometheus.CounterVec
	ReadingsAccepted prometheus.Counter
	ReadingsDropped  prometheus.Counter
	MergeDuration    prometheus.Histogram
}

// NewMetrics registers ingestion metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "readingd_batches_total",
			Help: "Ingest batches by outcome",
		}, []string{"outcome"}),
		ReadingsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "readingd_readings_accepted_total",
			Help: "Readings merged into device aggregates",
		}),
		ReadingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "readingd_readings_dropped_total",
			Help: "Malformed readings skipped inside accepted batches",
		}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "readingd_merge_duration_seconds",
			Help:    "Duration of MergeBatch including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveBatch counts one batch with the given outcome.
func (m *Metrics) ObserveBatch(outcome string) {
	m.Batches.WithLabelValues(outcome).Inc()
}

// ObserveMerge records a successful merge started at start.
func (m *Metrics) ObserveMerge(start time.Time, stats FoldStats) {
	m.MergeDuration.Observe(time.Since(start).Seconds())
	m.ReadingsAccepted.Add(float64(stats.Accepted))
	m.ReadingsDropped.Add(float64(stats.Dropped))
}
