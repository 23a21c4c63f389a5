package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stepsTotal     *prometheus.CounterVec
	stepLoss       *prometheus.HistogramVec
	lastPrediction *prometheus.GaugeVec
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		stepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastmix_steps_total",
				Help: "Total number of aggregation steps processed",
			},
			[]string{"mixture", "model"},
		),
		stepLoss: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecastmix_step_loss",
				Help:    "Per-step loss of the aggregated forecast",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"mixture", "model"},
		),
		lastPrediction: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecastmix_last_prediction",
				Help: "Last aggregated prediction for a mixture",
			},
			[]string{"mixture"},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastmix_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "topic"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecastmix_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecastmix_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordStep records one completed aggregation step and its loss.
func (r *Recorder) RecordStep(mixtureID, model string, loss float64) {
	r.stepsTotal.WithLabelValues(mixtureID, model).Inc()
	r.stepLoss.WithLabelValues(mixtureID, model).Observe(loss)
}

// RecordPrediction records the last aggregated prediction for a mixture.
func (r *Recorder) RecordPrediction(mixtureID string, value float64) {
	r.lastPrediction.WithLabelValues(mixtureID).Set(value)
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, topic string) {
	r.messagesSent.WithLabelValues(backend, topic).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
