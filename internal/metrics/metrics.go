// Package metrics exposes request and prediction metrics in Prometheus format.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	inferenceTime   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skincheck_predictions_total",
				Help: "Predictions served, by outcome",
			}, []string{"outcome"},
		),
		inferenceTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skincheck_inference_duration_seconds",
				Help:    "Time spent in the classifier per prediction",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.requestCount, m.requestDuration, m.predictions, m.inferenceTime)
	return m
}

// Middleware records every request by route template, so path parameters
// and unknown paths do not explode the label space.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestCount.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// ObservePrediction counts one prediction. outcome is "ok" or an error kind.
func (m *Metrics) ObservePrediction(outcome string, took time.Duration) {
	m.predictions.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.inferenceTime.Observe(took.Seconds())
	}
}
