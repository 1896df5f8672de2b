// Package metrics exposes Prometheus collectors for inference and training.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry. All methods are safe
// on a nil receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	Predictions       *prometheus.CounterVec
	PredictionErrors  *prometheus.CounterVec
	PredictionLatency prometheus.Histogram

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	LastAccuracy     prometheus.Gauge

	DatasetRefreshes *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obesity_predictions_total",
				Help: "Total number of predictions by predicted class",
			},
			[]string{"class"},
		),
		PredictionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obesity_prediction_errors_total",
				Help: "Total number of rejected prediction requests",
			},
			[]string{"reason"}, // reason: bad_request|schema_mismatch|internal
		),
		PredictionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "obesity_prediction_latency_seconds",
				Help:    "Single-record prediction latency in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),

		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obesity_training_runs_total",
				Help: "Total number of training runs by outcome",
			},
			[]string{"status"}, // status: succeeded|gate_failed|failed
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "obesity_training_duration_seconds",
				Help:    "Training pipeline duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		LastAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "obesity_model_accuracy",
				Help: "Test accuracy of the most recent evaluated training run",
			},
		),

		DatasetRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obesity_dataset_refreshes_total",
				Help: "Ensure-fresh checks by outcome",
			},
			[]string{"outcome"}, // outcome: rebuilt|fresh|error
		),
	}

	m.registry.MustRegister(
		m.Predictions,
		m.PredictionErrors,
		m.PredictionLatency,
		m.TrainingRuns,
		m.TrainingDuration,
		m.LastAccuracy,
		m.DatasetRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Register adds extra collectors to the registry
func (m *Metrics) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePrediction records a successful prediction
func (m *Metrics) ObservePrediction(class string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(class).Inc()
	m.PredictionLatency.Observe(elapsed.Seconds())
}

// PredictionFailed records a rejected prediction
func (m *Metrics) PredictionFailed(reason string) {
	if m == nil {
		return
	}
	m.PredictionErrors.WithLabelValues(reason).Inc()
}

// TrainingFinished records the outcome of a training run. Accuracy is only
// set when the run got as far as evaluation.
func (m *Metrics) TrainingFinished(status string, accuracy float64, evaluated bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(status).Inc()
	m.TrainingDuration.Observe(elapsed.Seconds())
	if evaluated {
		m.LastAccuracy.Set(accuracy)
	}
}

// DatasetRefreshed records an ensure-fresh outcome
func (m *Metrics) DatasetRefreshed(outcome string) {
	if m == nil {
		return
	}
	m.DatasetRefreshes.WithLabelValues(outcome).Inc()
}
