// Package metrics holds the Prometheus collectors for the service. Every
// method is safe on a nil *Metrics, so components built without metrics
// (tests, tools) need no stubs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ladder"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authRejections      *prometheus.CounterVec

	submissions     *prometheus.CounterVec
	antiCheatFlags  *prometheus.CounterVec
	submitDuration  prometheus.Histogram
	rateLimitChecks *prometheus.CounterVec

	hubConnections prometheus.Gauge
	hubDisconnects *prometheus.CounterVec
	hubDeliveries  *prometheus.CounterVec
	hubDropped     prometheus.Counter

	leaderboardSize  *prometheus.GaugeVec
	snapshotDuration prometheus.Histogram
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected with 401 or 403.",
		}, []string{"reason"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Score submissions by resulting status.",
		}, []string{"status"}),
		antiCheatFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anticheat_flags_total",
			Help:      "Anti-cheat flags attached to accepted submissions.",
		}, []string{"flag"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time spent in the submission pipeline.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		rateLimitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by tier and outcome.",
		}, []string{"tier", "outcome"}),
		hubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_connections",
			Help:      "Live broadcast hub connections.",
		}),
		hubDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_disconnects_total",
			Help:      "Hub disconnects by reason.",
		}, []string{"reason"}),
		hubDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_deliveries_total",
			Help:      "Per-connection event sends by event type and result.",
		}, []string{"type", "result"}),
		hubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_dropped_total",
			Help:      "Events dropped because the hub queue was full.",
		}),
		leaderboardSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leaderboard_entries",
			Help:      "Entries per leaderboard partition.",
		}, []string{"leaderboard"}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_snapshot_duration_seconds",
			Help:      "Time to persist one partition snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpRequestDuration,
		m.authRejections,
		m.submissions,
		m.antiCheatFlags,
		m.submitDuration,
		m.rateLimitChecks,
		m.hubConnections,
		m.hubDisconnects,
		m.hubDeliveries,
		m.hubDropped,
		m.leaderboardSize,
		m.snapshotDuration,
	)
	return m
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per chi route pattern, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())

		switch status {
		case http.StatusUnauthorized:
			m.authRejections.WithLabelValues("401_unauthorized").Inc()
		case http.StatusForbidden:
			m.authRejections.WithLabelValues("403_forbidden").Inc()
		}
	})
}

// SubmissionProcessed counts one submission outcome and its pipeline time.
func (m *Metrics) SubmissionProcessed(status string, flags []string, took time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
	for _, f := range flags {
		m.antiCheatFlags.WithLabelValues(f).Inc()
	}
	m.submitDuration.Observe(took.Seconds())
}

// SubmissionTransition counts an admin or dispute transition.
func (m *Metrics) SubmissionTransition(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

// RateLimitDecision counts one limiter decision. outcome is "allowed" or the
// rejecting window.
func (m *Metrics) RateLimitDecision(tier, outcome string) {
	if m == nil {
		return
	}
	m.rateLimitChecks.WithLabelValues(tier, outcome).Inc()
}

// ConnectionOpened tracks a new hub connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.hubConnections.Inc()
}

// ConnectionClosed tracks a removed hub connection.
func (m *Metrics) ConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.hubConnections.Dec()
	m.hubDisconnects.WithLabelValues(reason).Inc()
}

// EventBroadcast records per-connection results of one fan-out.
func (m *Metrics) EventBroadcast(eventType string, delivered, skipped, failed int) {
	if m == nil {
		return
	}
	m.hubDeliveries.WithLabelValues(eventType, "delivered").Add(float64(delivered))
	m.hubDeliveries.WithLabelValues(eventType, "skipped").Add(float64(skipped))
	m.hubDeliveries.WithLabelValues(eventType, "failed").Add(float64(failed))
}

// EventDropped counts an event the hub queue could not accept.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.hubDropped.Inc()
}

// SetLeaderboardSize publishes a partition's entry count.
func (m *Metrics) SetLeaderboardSize(leaderboardID string, n int) {
	if m == nil {
		return
	}
	m.leaderboardSize.WithLabelValues(leaderboardID).Set(float64(n))
}

// DeleteLeaderboard drops a partition's gauge.
func (m *Metrics) DeleteLeaderboard(leaderboardID string) {
	if m == nil {
		return
	}
	m.leaderboardSize.DeleteLabelValues(leaderboardID)
}

// SnapshotSaved records the time taken to persist one partition.
func (m *Metrics) SnapshotSaved(took time.Duration) {
	if m == nil {
		return
	}
	m.snapshotDuration.Observe(took.Seconds())
}
