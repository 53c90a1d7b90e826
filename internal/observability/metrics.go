package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters for generation, measurement and export.
//
// A batch run has no scrape endpoint, so metrics live on their own registry
// and can be flushed to a node-exporter textfile when the run ends.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.GenerateDone("openai", "gpt-4o", "success", time.Since(start).Seconds())
//	_ = metrics.WriteTextfile("/var/lib/node_exporter/llmexp.prom")
//
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// GenerateRequests counts generation attempts.
	// Labels: provider, model, status (success|error)
	GenerateRequests *prometheus.CounterVec

	// GenerateDuration measures a single generation attempt in seconds.
	// Labels: provider, model
	GenerateDuration *prometheus.HistogramVec

	// Measures counts recorded measures.
	// Labels: measure, outcome (parsed|raw_only|absent)
	Measures *prometheus.CounterVec

	// RowsWritten counts result rows handed to sinks.
	// Labels: sink
	RowsWritten *prometheus.CounterVec
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		GenerateRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmexp_generate_requests_total",
				Help: "Total number of generation attempts by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		GenerateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmexp_generate_duration_seconds",
				Help:    "Duration of generation attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		Measures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmexp_measures_total",
				Help: "Total number of recorded measures by outcome",
			},
			[]string{"measure", "outcome"},
		),

		RowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmexp_rows_written_total",
				Help: "Total number of result rows written by sink",
			},
			[]string{"sink"},
		),
	}
}

// GenerateDone records one generation attempt.
func (m *Metrics) GenerateDone(provider, model, status string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerateRequests.WithLabelValues(provider, model, status).Inc()
	m.GenerateDuration.WithLabelValues(provider, model).Observe(seconds)
}

// MeasureRecorded records the outcome of one measure.
func (m *Metrics) MeasureRecorded(measure, outcome string) {
	if m == nil {
		return
	}
	m.Measures.WithLabelValues(measure, outcome).Inc()
}

// RowsWrittenTo adds n rows to the sink counter.
func (m *Metrics) RowsWrittenTo(sink string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsWritten.WithLabelValues(sink).Add(float64(n))
}

// WriteTextfile writes the current metric values in the text exposition
// format, atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
