package metrics

import (
	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rowsWritten  *prometheus.CounterVec
	missingDates *prometheus.GaugeVec
	retries      *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

var _ domrepo.Metrics = (*Recorder)(nil)

// New registers the engine metrics on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the engine metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasapull_rows_written_total",
				Help: "Observation rows written, by rate type and outcome",
			},
			[]string{"tipo_tasa", "kind"},
		),
		missingDates: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tasapull_missing_dates",
				Help: "Dates lacking a value inside the rate type's range at the last verification",
			},
			[]string{"tipo_tasa"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasapull_retries_total",
				Help: "Retried source operations",
			},
			[]string{"tipo_tasa", "operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasapull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasapull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 300},
			},
			[]string{"operation"},
		),
	}
}

// RecordRowsWritten adds n rows of kind (inserted, updated) for rt.
func (r *Recorder) RecordRowsWritten(rt models.RateType, kind string, n int) {
	if n <= 0 {
		return
	}
	r.rowsWritten.WithLabelValues(string(rt), kind).Add(float64(n))
}

// RecordMissingDates sets the current gap count of rt.
func (r *Recorder) RecordMissingDates(rt models.RateType, n int) {
	r.missingDates.WithLabelValues(string(rt)).Set(float64(n))
}

// RecordRetry counts one retry of op for rt.
func (r *Recorder) RecordRetry(rt models.RateType, op string) {
	r.retries.WithLabelValues(string(rt), op).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
