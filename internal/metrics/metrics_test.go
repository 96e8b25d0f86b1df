package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("GET", "/security/events/42/", 200, 120*time.Millisecond)
	m.ObserveRequest("GET", "/security/events/43/", 200, 80*time.Millisecond)
	m.ObserveRequest("POST", "/auth/login/", 401, 10*time.Millisecond)
	m.ObserveRequest("GET", "/auth/user/", 0, time.Second)

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/security/events/:id/", "2xx")); got != 2 {
		t.Errorf("expected 2 event requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("POST", "/auth/login/", "4xx")); got != 1 {
		t.Errorf("expected 1 login request, got %v", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/auth/user/", "none")); got != 1 {
		t.Errorf("expected 1 transport failure, got %v", got)
	}
}

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordError("unauthorized")
	m.RecordTransition("authenticated", "unauthenticated")
	m.RecordInvalidation()
	m.RecordNotification("error")
	m.RecordStale("events")

	if got := testutil.ToFloat64(m.RequestErrors.WithLabelValues("unauthorized")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionInvalidations); got != 1 {
		t.Errorf("expected 1 invalidation, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionTransitions.WithLabelValues("authenticated", "unauthenticated")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.StaleResponses.WithLabelValues("events")); got != 1 {
		t.Errorf("expected 1 stale response, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.RecordError("server")
	m.RecordTransition("a", "b")
	m.RecordInvalidation()
	m.RecordNotification("info")
	m.RecordStale("x")
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/security/events/42/analyze/", "/security/events/:id/analyze/"},
		{"/files/bank-files/7f3c2a10-5b7e-4c7a-9a43-0c7f1f2b9e11/download/", "/files/bank-files/:id/download/"},
		{"/files/bank-files/01HZX3J8K2M4N6P8Q0R2S4T6V8/", "/files/bank-files/:id/"},
		{"/security/events/?limit=5", "/security/events/"},
		{"/security/events/stats/", "/security/events/stats/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := RouteLabel(tt.path); got != tt.want {
				t.Errorf("RouteLabel(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordNotification("success")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "bankshield_notifications_total") {
		t.Error("expected bankshield metrics in output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime metrics in output")
	}
}
