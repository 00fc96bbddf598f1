// Package metrics exposes Prometheus collectors for HTTP traffic, slot
// reservations, lifecycle transitions and push connections.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector of one server instance.
type Registry struct {
	reg *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	reservations    *prometheus.CounterVec
	reserveDuration prometheus.Histogram
	transitions     *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// NewRegistry builds a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_reservations_total",
				Help: "Reservation attempts by outcome",
			},
			[]string{"outcome"},
		),
		reserveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "booking_reserve_duration_seconds",
				Help:    "Duration of reserve calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_transitions_total",
				Help: "Appointment lifecycle transitions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests, r.httpDuration, r.reservations, r.reserveDuration,
		r.transitions, r.wsClients,
	)
	return r
}

// Prometheus returns the underlying registry, e.g. for tests.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// ObserveReservation records one reserve call. outcome is one of
// "created", "replayed", "conflict", "validation", "forbidden",
// "transient" or "error".
func (r *Registry) ObserveReservation(outcome string, took time.Duration) {
	r.reservations.WithLabelValues(outcome).Inc()
	r.reserveDuration.Observe(took.Seconds())
}

// ObserveTransition records one lifecycle transition attempt.
func (r *Registry) ObserveTransition(action, outcome string) {
	r.transitions.WithLabelValues(action, outcome).Inc()
}

// SetWSClients updates the WebSocket client gauge.
func (r *Registry) SetWSClients(n int) {
	r.wsClients.Set(float64(n))
}

// Middleware counts and times every request by its route pattern.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			r.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg}))
}
