// Package fakebackend is an in-process stand-in for the BankShield REST backend.
//
// It serves the consumed API surface under /api with scripted accounts, data,
// failures and holds, and counts hits per route so tests can assert on traffic.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// User is an account known to the backend
type User struct {
	ID          int      `json:"id"`
	Username    string   `json:"username"`
	Password    string   `json:"-"`
	Email       string   `json:"email,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
	Departments []int    `json:"departments"`
}

// Department is a visible organisational unit
type Department struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Event is a stored security event
type Event struct {
	ID          int    `json:"id"`
	EventType   string `json:"event_type"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
	Description string `json:"description"`
	IsResolved  bool   `json:"is_resolved"`
	Timestamp   string `json:"timestamp"`
}

// File is a stored document
type File struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	FileType    string `json:"file_type"`
	Sensitivity string `json:"sensitivity"`
	Description string `json:"description,omitempty"`
	Size        int    `json:"size"`
	UploadedAt  string `json:"uploaded_at"`
	content     []byte
}

type failure struct {
	status int
	body   string
}

// Backend is a scripted backend served over httptest
type Backend struct {
	server *httptest.Server

	mu          sync.Mutex
	users       map[string]*User
	tokens      map[string]string
	nextToken   int
	departments []Department
	events      []Event
	files       []*File
	failures    map[string]failure
	holds       map[string]chan struct{}
	released    map[chan struct{}]bool
	hits        map[string]int
	headers     map[string]http.Header
	chatReply   string
	uploads     map[string]string
}

// New starts a backend seeded with an admin and an analyst account
func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		users:    make(map[string]*User),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
		holds:    make(map[string]chan struct{}),
		released: make(map[chan struct{}]bool),
		hits:     make(map[string]int),
		headers:  make(map[string]http.Header),
		departments: []Department{
			{ID: 1, Name: "Retail Banking"},
			{ID: 2, Name: "Treasury"},
		},
		events: []Event{
			{ID: 1, EventType: "LOGIN_FAILED", Severity: "HIGH", Status: "active", Description: "Repeated failed logins", Timestamp: "2026-10-01T09:00:00Z"},
			{ID: 2, EventType: "DATA_EXPORT", Severity: "CRITICAL", Status: "investigating", Description: "Bulk export of client data", Timestamp: "2026-10-02T10:30:00Z"},
			{ID: 3, EventType: "PORT_SCAN", Severity: "LOW", Status: "resolved", Description: "External port scan", IsResolved: true, Timestamp: "2026-10-03T12:00:00Z"},
		},
		files: []*File{
			{ID: 1, Name: "q3-report.pdf", FileType: "report", Sensitivity: "confidential", Size: 11, UploadedAt: "2026-10-01T08:00:00Z", content: []byte("q3 numbers\n")},
		},
		chatReply: "All systems nominal.",
		uploads:   make(map[string]string),
	}
	b.AddUser(User{ID: 1, Username: "admin", Password: "admin123", FirstName: "Ada", Role: "admin",
		Permissions: []string{"view_events", "manage_files", "manage_users"}, Departments: []int{1}})
	b.AddUser(User{ID: 2, Username: "analyst", Password: "analyst123", Role: "security_analyst",
		Permissions: []string{"view_events"}, Departments: []int{2}})

	b.server = httptest.NewServer(b.router())
	t.Cleanup(b.Close)
	return b
}

// URL returns the API base URL
func (b *Backend) URL() string {
	return b.server.URL + "/api"
}

// Close releases held requests and stops the server
func (b *Backend) Close() {
	b.mu.Lock()
	for route, ch := range b.holds {
		b.releaseLocked(ch)
		delete(b.holds, route)
	}
	b.mu.Unlock()
	b.server.Close()
}

// AddUser registers or replaces an account
func (b *Backend) AddUser(u User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	if u.Departments == nil {
		u.Departments = []int{}
	}
	b.users[u.Username] = &u
}

// IssueToken returns a valid access token for username without a login round-trip
func (b *Backend) IssueToken(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(username)
}

func (b *Backend) issueLocked(username string) string {
	b.nextToken++
	tok := fmt.Sprintf("tok-%s-%d", username, b.nextToken)
	b.tokens[tok] = username
	return tok
}

// RevokeAll invalidates every issued token so authenticated routes answer 401
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]string)
}

// Fail makes route ("GET /security/events/") answer status with body until cleared
func (b *Backend) Fail(route string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, body: body}
}

// ClearFailure removes a scripted failure
func (b *Backend) ClearFailure(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Hold blocks requests to route until the returned release func is called
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.holds[route] == ch {
			delete(b.holds, route)
		}
		b.releaseLocked(ch)
	}
}

func (b *Backend) releaseLocked(ch chan struct{}) {
	if !b.released[ch] {
		b.released[ch] = true
		close(ch)
	}
}

// Hits returns how many requests reached route
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// LastHeader returns a header of the most recent request to route
func (b *Backend) LastHeader(route, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.headers[route]; ok {
		return h.Get(name)
	}
	return ""
}

// SetChatReply changes the assistant's canned answer
func (b *Backend) SetChatReply(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatReply = msg
}

// Uploaded returns the form fields of the last upload named name
func (b *Backend) Uploaded(name string) (content string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok = b.uploads[name]
	return content, ok
}

func (b *Backend) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(b.intercept)

	api.HandleFunc("/auth/login/", b.handleLogin).Methods("POST")
	api.HandleFunc("/auth/logout/", b.authed(b.handleLogout)).Methods("POST")
	api.HandleFunc("/auth/user/", b.authed(b.handleGetUser)).Methods("GET")
	api.HandleFunc("/auth/user/", b.authed(b.handlePatchUser)).Methods("PATCH")
	api.HandleFunc("/auth/change-password/", b.authed(b.handleChangePassword)).Methods("POST")
	api.HandleFunc("/auth/request-reset-password/", b.handleOK).Methods("POST")
	api.HandleFunc("/auth/confirm-reset-password/", b.handleOK).Methods("POST")
	api.HandleFunc("/auth/departments/", b.authed(b.handleDepartments)).Methods("GET")

	api.HandleFunc("/security/events/", b.authed(b.handleListEvents)).Methods("GET")
	api.HandleFunc("/security/events/stats/", b.authed(b.handleStats)).Methods("GET")
	api.HandleFunc("/security/events/analyze/", b.authed(b.handleAnalyze)).Methods("POST")
	api.HandleFunc("/security/events/{id}/", b.authed(b.handleGetEvent)).Methods("GET")
	api.HandleFunc("/security/events/{id}/analyze/", b.authed(b.handleAnalyze)).Methods("POST")
	api.HandleFunc("/security/permissions/", b.authed(b.handlePermissions)).Methods("GET")
	api.HandleFunc("/security/permissions/verify_access/", b.authed(b.handleVerifyAccess)).Methods("POST")
	api.HandleFunc("/security/ai-requests/", b.authed(b.handleEmptyPage)).Methods("GET")

	api.HandleFunc("/files/bank-files/", b.authed(b.handleListFiles)).Methods("GET")
	api.HandleFunc("/files/bank-files/", b.authed(b.handleUpload)).Methods("POST")
	api.HandleFunc("/files/bank-files/search/", b.authed(b.handleSearchFiles)).Methods("POST")
	api.HandleFunc("/files/bank-files/{id}/", b.authed(b.handleGetFile)).Methods("GET")
	api.HandleFunc("/files/bank-files/{id}/download/", b.authed(b.handleDownload)).Methods("GET")
	api.HandleFunc("/files/access-logs/", b.authed(b.handleEmptyPage)).Methods("GET")

	api.HandleFunc("/ai/chat/", b.authed(b.handleChat)).Methods("POST")
	return r
}

// routeKey names a request by method and path template relative to /api
func routeKey(r *http.Request) string {
	tmpl := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if t, err := route.GetPathTemplate(); err == nil {
			tmpl = t
		}
	}
	return r.Method + " " + strings.TrimPrefix(tmpl, "/api")
}

// intercept counts hits, applies holds and scripted failures
func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r)

		b.mu.Lock()
		b.hits[key]++
		b.headers[key] = r.Header.Clone()
		hold := b.holds[key]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		b.mu.Lock()
		f, failing := b.failures[key]
		b.mu.Unlock()
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user *User)

// authed rejects requests without a live token with 401
func (b *Backend) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Token ")

		b.mu.Lock()
		username, ok := b.tokens[tok]
		user := b.users[username]
		b.mu.Unlock()

		if tok == "" || !ok || user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		h(w, r, user)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
