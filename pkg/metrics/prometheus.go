package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecastsTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	sigmaStep      *prometheus.GaugeVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		forecastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synth_forecasts_total",
				Help: "Total number of ensemble forecasts generated",
			},
			[]string{"asset", "horizon"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synth_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		sigmaStep: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synth_sigma_step",
				Help: "Last per-step volatility used for an asset",
			},
			[]string{"asset"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synth_last_price",
				Help: "Last tick price seen for an asset",
			},
			[]string{"asset"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synth_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast counts one generated ensemble.
func (r *Recorder) RecordForecast(asset, horizon string) {
	r.forecastsTotal.WithLabelValues(asset, horizon).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSigmaStep records the per-step volatility last used for an asset.
func (r *Recorder) RecordSigmaStep(asset string, sigma float64) {
	r.sigmaStep.WithLabelValues(asset).Set(sigma)
}

// RecordTick records the last tick price for an asset.
func (r *Recorder) RecordTick(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
