package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/bankshield/internal/contract"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/metrics"
	"github.com/felixgeelhaar/bankshield/internal/nav"
	"github.com/felixgeelhaar/bankshield/internal/testutil/fakebackend"
	"github.com/felixgeelhaar/bankshield/internal/tokenstore"
)

func newClient(t *testing.T, baseURL string, store tokenstore.Store, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return NewClient(baseURL, store, opts...)
}

func TestClient_AttachesCredential(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	client := newClient(t, backend.URL(), store)

	_, err := client.CurrentUser(context.Background())
	require.Error(t, err, "no credential means an unauthenticated request")
	assert.Empty(t, backend.LastHeader("GET /auth/user/", "Authorization"))

	tok := backend.IssueToken("admin")
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: tok}))

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, ID("1"), user.ID)
	assert.Equal(t, "Token "+tok, backend.LastHeader("GET /auth/user/", "Authorization"))

	_, err = uuid.Parse(backend.LastHeader("GET /auth/user/", "X-Request-ID"))
	assert.NoError(t, err, "every request carries a request id")
}

func TestClient_ErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/forbidden/":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		case "/server/":
			w.WriteHeader(http.StatusBadGateway)
		case "/missing/":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found."}`))
		case "/malformed/":
			_, _ = w.Write([]byte(`{"id":`))
		case "/slow/":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, tokenstore.NewMemoryStore(), WithTimeout(50*time.Millisecond))

	tests := []struct {
		path   string
		kind   errors.Kind
		status int
	}{
		{"/forbidden/", errors.KindForbidden, 403},
		{"/server/", errors.KindServer, 502},
		{"/missing/", errors.KindRequest, 404},
		{"/malformed/", errors.KindServer, 0},
		{"/slow/", errors.KindTransport, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var out map[string]any
			err := client.do(context.Background(), http.MethodGet, tt.path, nil, nil, &out)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.Equal(t, tt.status, errors.StatusOf(err))
		})
	}

	var e *errors.Error
	err := client.do(context.Background(), http.MethodGet, "/missing/", nil, nil, nil)
	require.True(t, errors.As(err, &e))
	assert.JSONEq(t, `{"detail":"Not found."}`, string(e.Payload), "payload is passed through uninterpreted")
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newClient(t, url, tokenstore.NewMemoryStore())
	_, err := client.EventStats(context.Background())
	assert.True(t, errors.Is(err, errors.KindTransport))
}

func TestClient_UnauthorizedInvalidatesAndRedirects(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	tok := backend.IssueToken("analyst")
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: tok}))

	router := nav.NewRouter(nav.Events)
	client := newClient(t, backend.URL(), store, WithNavigator(router))

	var rejected atomic.Value
	client.OnUnauthorized(func(token string) bool {
		rejected.Store(token)
		return true
	})

	backend.RevokeAll()
	_, err := client.ListEvents(context.Background(), EventFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnauthorized))
	assert.Equal(t, tok, rejected.Load())
	assert.Equal(t, nav.Login, router.Location())
}

func TestClient_UnauthorizedOnLoginScreen(t *testing.T) {
	backend := fakebackend.New(t)
	router := nav.NewRouter(nav.Login)
	client := newClient(t, backend.URL(), tokenstore.NewMemoryStore(), WithNavigator(router))

	called := false
	client.OnUnauthorized(func(string) bool {
		called = true
		return true
	})

	_, err := client.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnauthorized))
	assert.False(t, called, "a failed login is not a session expiry")
	assert.Equal(t, nav.Login, router.Location())
}

func TestClient_UnauthorizedAlreadyHandled(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: backend.IssueToken("admin")}))
	router := nav.NewRouter(nav.Files)
	client := newClient(t, backend.URL(), store, WithNavigator(router))
	client.OnUnauthorized(func(string) bool { return false })

	backend.RevokeAll()
	_, err := client.ListFiles(context.Background(), FileFilter{})
	require.Error(t, err)
	assert.Equal(t, nav.Files, router.Location(), "no redirect when nothing was invalidated")
}

func TestClient_UnauthorizedWithoutCredentialRedirects(t *testing.T) {
	backend := fakebackend.New(t)
	router := nav.NewRouter(nav.Files)
	client := newClient(t, backend.URL(), tokenstore.NewMemoryStore(), WithNavigator(router))

	called := false
	client.OnUnauthorized(func(string) bool {
		called = true
		return false
	})

	_, err := client.ListFiles(context.Background(), FileFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindUnauthorized))
	assert.False(t, called, "there is no credential to invalidate")
	assert.Equal(t, nav.Login, router.Location())
}

func TestClient_ContractValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":1,"username":"admin"}}`))
	}))
	defer srv.Close()

	lenient := newClient(t, srv.URL, tokenstore.NewMemoryStore())
	resp, err := lenient.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Empty(t, resp.AccessToken)

	strict := newClient(t, srv.URL, tokenstore.NewMemoryStore(), WithContract(contract.MustLoad()))
	_, err = strict.Login(context.Background(), "admin", "pw")
	require.Error(t, err)
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.KindServer, e.Kind)
	assert.Equal(t, errors.ErrCodeContractFailure, e.Code)
}

func TestClient_FakeBackendHonoursContract(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	client := newClient(t, backend.URL(), store, WithContract(contract.MustLoad()))
	ctx := context.Background()

	login, err := client.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: login.AccessToken}))

	_, err = client.Departments(ctx)
	require.NoError(t, err)
	_, err = client.ListEvents(ctx, EventFilter{Limit: 5})
	require.NoError(t, err)
	_, err = client.GetEvent(ctx, "1")
	require.NoError(t, err)
	_, err = client.EventStats(ctx)
	require.NoError(t, err)
	_, err = client.AnalyzeEvent(ctx, "1")
	require.NoError(t, err)
	_, err = client.VerifyAccess(ctx, "department", "1")
	require.NoError(t, err)
	_, err = client.ListFiles(ctx, FileFilter{})
	require.NoError(t, err)
	_, err = client.SearchFiles(ctx, "report")
	require.NoError(t, err)
	_, err = client.Chat(ctx, ChatRequest{Message: "status?"})
	require.NoError(t, err)
	require.NoError(t, client.Logout(ctx))
}

func TestClient_UploadAndDownload(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: backend.IssueToken("admin")}))
	client := newClient(t, backend.URL(), store)
	ctx := context.Background()

	content := "account,balance\n42,1000\n"
	file, err := client.UploadFile(ctx, UploadRequest{
		Filename:    "balances.csv",
		Content:     strings.NewReader(content),
		Name:        "balances.csv",
		FileType:    "spreadsheet",
		Sensitivity: "restricted",
	})
	require.NoError(t, err)
	assert.Equal(t, "balances.csv", file.Name)
	assert.Equal(t, "restricted", file.Sensitivity)
	assert.Equal(t, int64(len(content)), file.Size)

	got, ok := backend.Uploaded("balances.csv")
	require.True(t, ok)
	assert.Equal(t, content, got)

	var buf bytes.Buffer
	dl, err := client.DownloadFile(ctx, file.ID.String(), &buf)
	require.NoError(t, err)
	assert.Equal(t, content, buf.String())
	assert.Equal(t, "balances.csv", dl.Filename)
	assert.Equal(t, int64(len(content)), dl.Size)

	sum := blake3.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), dl.BLAKE3)
}

func TestClient_UploadValidation(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1", tokenstore.NewMemoryStore())

	_, err := client.UploadFile(context.Background(), UploadRequest{Name: "x"})
	assert.True(t, errors.Is(err, errors.KindValidation))

	_, err = client.UploadFile(context.Background(), UploadRequest{Content: strings.NewReader("x")})
	assert.True(t, errors.Is(err, errors.KindValidation))
}

func TestClient_RecordsMetrics(t *testing.T) {
	backend := fakebackend.New(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := newClient(t, backend.URL(), tokenstore.NewMemoryStore(), WithMetrics(m))

	_, _ = client.GetEvent(context.Background(), "7")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/security/events/:id/", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestErrors.WithLabelValues("unauthorized")))
}

func TestEventFilterValues(t *testing.T) {
	unresolved := false
	q := EventFilter{
		Severity:   []string{"HIGH", "CRITICAL"},
		Status:     []string{"active"},
		From:       "2026-01-01",
		Search:     "export",
		IsResolved: &unresolved,
		Limit:      3,
		Sort:       "-timestamp",
	}.Values()

	assert.Equal(t, "HIGH,CRITICAL", q.Get("severity"))
	assert.Equal(t, "active", q.Get("status"))
	assert.Equal(t, "2026-01-01", q.Get("from_date"))
	assert.Equal(t, "export", q.Get("search"))
	assert.Equal(t, "false", q.Get("is_resolved"))
	assert.Equal(t, "3", q.Get("limit"))
	assert.Equal(t, "-timestamp", q.Get("sort"))
	assert.False(t, q.Has("type"))
	assert.False(t, q.Has("to_date"))

	assert.Empty(t, EventFilter{}.Values())
}

func TestIDDecoding(t *testing.T) {
	var u User
	require.NoError(t, jsonUnmarshal(`{"id":42,"username":"a","departments":[1,"ops"]}`, &u))
	assert.Equal(t, ID("42"), u.ID)
	assert.Equal(t, []ID{"1", "ops"}, u.Departments)
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
