package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	extractionsTotal *prometheus.CounterVec
	actionsPersisted prometheus.Counter
}

// NewMetrics creates and registers the server metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhythmd_http_requests_total",
			Help: "Total HTTP requests by method, endpoint, and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rhythmd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and endpoint.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "endpoint"}),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhythmd_extractions_total",
			Help: "Completed extraction runs by strategy (llm or rules).",
		}, []string{"method"}),
		actionsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmd_actions_persisted_total",
			Help: "Actions that passed validation and were written to storage.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.extractionsTotal,
		m.actionsPersisted,
	)
	return m
}

// Middleware records per-request counters and latency. Endpoint labels use
// the route template, not the raw URI, to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			endpoint := c.Path()
			method := c.Request().Method
			m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Response().Status)).Inc()
			m.requestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordExtraction counts a completed pipeline run.
func (m *Metrics) RecordExtraction(method string, actionsPersisted int) {
	m.extractionsTotal.WithLabelValues(method).Inc()
	m.actionsPersisted.Add(float64(actionsPersisted))
}
