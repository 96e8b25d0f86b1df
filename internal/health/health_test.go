package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockChecker is a test double for health checks
type mockChecker struct {
	name   string
	result *Result
	delay  time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) *Result {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Unhealthy("check cancelled").
				WithDetail("error", ctx.Err().Error())
		}
	}
	return m.result
}

func TestManagerCheck_KeepsOrder(t *testing.T) {
	m := NewManager(
		&mockChecker{name: "slow", result: Healthy("ok"), delay: 20 * time.Millisecond},
		&mockChecker{name: "fast", result: Degraded("meh")},
	)
	m.AddChecker(&mockChecker{name: "nil"})

	reports := m.Check(context.Background())

	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	for i, want := range []string{"slow", "fast", "nil"} {
		if reports[i].Name != want {
			t.Errorf("reports[%d].Name = %q, want %q", i, reports[i].Name, want)
		}
	}
	if reports[0].Result.Latency < 20*time.Millisecond {
		t.Errorf("latency = %v, want at least 20ms", reports[0].Result.Latency)
	}
	if reports[2].Result.Status != StatusUnhealthy {
		t.Errorf("nil result status = %v, want unhealthy", reports[2].Result.Status)
	}
}

func TestManagerCheck_Timeout(t *testing.T) {
	m := NewManager(&mockChecker{name: "hang", result: Healthy("never"), delay: time.Second}).
		WithTimeout(10 * time.Millisecond)

	reports := m.Check(context.Background())

	if reports[0].Result.Status != StatusUnhealthy {
		t.Errorf("status = %v, want unhealthy", reports[0].Result.Status)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reports []Report
			for _, s := range tt.statuses {
				reports = append(reports, Report{Result: NewResult(s, "")})
			}
			if got := Overall(reports); got != tt.want {
				t.Errorf("Overall() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackendChecker(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Status
	}{
		{"unauthorized means reachable", http.StatusUnauthorized, StatusHealthy},
		{"ok", http.StatusOK, StatusHealthy},
		{"not found", http.StatusNotFound, StatusDegraded},
		{"server error", http.StatusBadGateway, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := &BackendChecker{BaseURL: srv.URL + "/api/"}
			got := c.Check(context.Background())

			if got.Status != tt.want {
				t.Errorf("status = %v, want %v (%s)", got.Status, tt.want, got.Message)
			}
			if path != "/api/auth/user/" {
				t.Errorf("requested %q, want /api/auth/user/", path)
			}
		})
	}
}

func TestBackendChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := (&BackendChecker{BaseURL: url}).Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("status = %v, want unhealthy", got.Status)
	}
}

func TestCredentialFileChecker(t *testing.T) {
	dir := t.TempDir()

	missing := (&CredentialFileChecker{Path: filepath.Join(dir, "none.json")}).Check(context.Background())
	if missing.Status != StatusDegraded {
		t.Errorf("missing file status = %v, want degraded", missing.Status)
	}

	path := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := (&CredentialFileChecker{Path: path}).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("0600 file status = %v, want healthy", got.Status)
	}

	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := (&CredentialFileChecker{Path: path}).Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("0644 file status = %v, want degraded", got.Status)
	}
}

func TestContractChecker(t *testing.T) {
	got := ContractChecker{}.Check(context.Background())
	if got.Status != StatusHealthy {
		t.Errorf("status = %v, want healthy: %s", got.Status, got.Message)
	}
}
