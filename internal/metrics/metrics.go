package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client-side Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Backend request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Session metrics
	SessionTransitions   *prometheus.CounterVec
	SessionInvalidations prometheus.Counter

	// Presentation metrics
	Notifications  *prometheus.CounterVec
	StaleResponses *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankshield_api_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"method", "route", "status_class"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankshield_api_request_duration_seconds",
				Help:    "Backend API request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "route"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankshield_api_request_errors_total",
				Help: "Total number of failed backend API requests by error kind",
			},
			[]string{"kind"},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankshield_session_transitions_total",
				Help: "Session state machine transitions",
			},
			[]string{"from", "to"},
		),
		SessionInvalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bankshield_session_invalidations_total",
				Help: "Sessions invalidated after the backend rejected the credential",
			},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankshield_notifications_total",
				Help: "Notifications shown by kind",
			},
			[]string{"kind"},
		),
		StaleResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankshield_stale_responses_total",
				Help: "Responses discarded because a newer request superseded them",
			},
			[]string{"coordinator"},
		),
	}
}

// ObserveRequest records a completed backend round-trip.
// status is 0 when the request never produced a response.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	route := RouteLabel(path)
	m.Requests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordError counts a failed request by error kind
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.RequestErrors.WithLabelValues(kind).Inc()
}

// RecordTransition counts a session state change
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordInvalidation counts a forced logout
func (m *Metrics) RecordInvalidation() {
	if m == nil {
		return
	}
	m.SessionInvalidations.Inc()
}

// RecordNotification counts a shown notification
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

// RecordStale counts a discarded out-of-date response
func (m *Metrics) RecordStale(coordinator string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(coordinator).Inc()
}

// RouteLabel collapses identifiers in a request path so label cardinality stays bounded.
// "/security/events/42/analyze/" becomes "/security/events/:id/analyze/".
func RouteLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if isIdentifier(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func isIdentifier(segment string) bool {
	if segment == "" {
		return false
	}
	if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
		return true
	}
	// UUIDs and ULIDs
	if len(segment) == 36 && strings.Count(segment, "-") == 4 {
		return true
	}
	if len(segment) == 26 && strings.ToUpper(segment) == segment && !strings.ContainsAny(segment, "-_") {
		return true
	}
	return false
}

func statusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
