package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpMetricsOnce sync.Once
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestsInFly   *prometheus.GaugeVec
)

func registerHTTPMetrics() {
	httpMetricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_http_requests_total",
			Help: "Requests served, by route, method, and status.",
		}, []string{"route", "method", "status"})
		requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_http_request_duration_seconds",
			Help:    "Request handling time.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"})
		requestsInFly = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_http_in_flight_requests",
			Help: "Requests currently being handled.",
		}, []string{"route"})
	})
}

// RequestMetrics records request counts, latency, and in-flight gauges.
// Routes are labeled with the echo route template, not the raw URL, to keep
// label cardinality bounded.
func RequestMetrics() echo.MiddlewareFunc {
	registerHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method

			requestsInFly.WithLabelValues(route).Inc()
			start := time.Now()
			err := next(c)
			requestsInFly.WithLabelValues(route).Dec()

			requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Response().Status)).Inc()
			requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
