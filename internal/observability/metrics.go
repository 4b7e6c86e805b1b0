// Package observability exposes Prometheus metrics for the HTTP surface and
// the authentication flow.
package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	authDecisions   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iam_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_authorization_decisions_total",
		Help: "Authorization checkpoint outcomes by route.",
	}, []string{"route", "decision"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_domain_events_published_total",
		Help: "Domain events handed to the publisher by name and result.",
	}, []string{"event", "result"})
	registry.MustRegister(requests, duration, logins, decisions, published)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		logins:          logins,
		authDecisions:   decisions,
		eventsPublished: published,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := RoutePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLogin counts a login attempt ("success", "invalid_credentials", "error").
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveDecision counts an authorization checkpoint outcome.
func (m *Metrics) ObserveDecision(route, decision string) {
	if m == nil {
		return
	}
	m.authDecisions.WithLabelValues(route, decision).Inc()
}

// InstrumentPublisher wraps p so every batch is counted per event name.
func (m *Metrics) InstrumentPublisher(p events.Publisher) events.Publisher {
	if m == nil {
		return p
	}
	return events.PublisherFunc(func(ctx context.Context, evts []events.Event) error {
		err := p.Publish(ctx, evts)
		result := "ok"
		if err != nil {
			result = "error"
		}
		for _, evt := range evts {
			m.eventsPublished.WithLabelValues(evt.Name, result).Inc()
		}
		return err
	})
}

// InstrumentDB exports connection pool statistics of db under dbName.
func (m *Metrics) InstrumentDB(db *sql.DB, dbName string) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, dbName))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RoutePattern returns the chi pattern matched by r, or "unknown".
func RoutePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
