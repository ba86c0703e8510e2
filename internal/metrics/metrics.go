// Package metrics holds the Prometheus collectors of the catalog service.
// Every method is safe on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ingestion
	FilesIngested *prometheus.CounterVec

	// Completion poller
	ObservationsReleased *prometheus.CounterVec
	PollDuration         prometheus.Histogram
	PendingObservations  prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpdb_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "code"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dpdb_http_request_duration_seconds",
				Help:    "Duration of HTTP request handling",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		FilesIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpdb_files_ingested_total",
				Help: "Acquisition files ingested, by location and outcome",
			},
			[]string{"location", "outcome"},
		),

		ObservationsReleased: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpdb_observations_released_total",
				Help: "Observations handed to the ingest handler",
			},
			[]string{"partial"},
		),

		PollDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dpdb_poll_duration_seconds",
				Help:    "Duration of one completion poll",
				Buckets: prometheus.DefBuckets,
			},
		),

		PendingObservations: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpdb_pending_observations",
				Help: "Released observations waiting for a retry",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Ingested counts one file ingest. outcome is created, updated or failed.
func (m *Metrics) Ingested(location, outcome string) {
	if m == nil {
		return
	}
	m.FilesIngested.WithLabelValues(location, outcome).Inc()
}

// Released counts one released observation.
func (m *Metrics) Released(partial bool) {
	if m == nil {
		return
	}
	m.ObservationsReleased.WithLabelValues(strconv.FormatBool(partial)).Inc()
}

// Polled records one poll's duration and the pending backlog after it.
func (m *Metrics) Polled(d time.Duration, pending int) {
	if m == nil {
		return
	}
	m.PollDuration.Observe(d.Seconds())
	m.PendingObservations.Set(float64(pending))
}

// Middleware records request counts and durations labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
