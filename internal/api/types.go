package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ID is a backend identifier. The backend sends integers for most resources
// and strings for some; both decode into ID.
type ID string

// UnmarshalJSON accepts a JSON number or string
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

// User is the authenticated account as the backend describes it
type User struct {
	ID          ID       `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Departments []ID     `json:"departments,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
}

// FullName joins first and last name, falling back to the username
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// GreetingName is the first name, or the username when none is set
func (u User) GreetingName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// LoginResponse is returned by POST /auth/login/
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         User   `json:"user"`
}

// ChangePasswordRequest is the body of POST /auth/change-password/
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// PasswordResetConfirm is the body of POST /auth/confirm-reset-password/
type PasswordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Department is an organisational unit the account can see
type Department struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Page is a paginated list response
type Page[T any] struct {
	Count       int     `json:"count"`
	Next        *string `json:"next,omitempty"`
	Previous    *string `json:"previous,omitempty"`
	RecentCount int     `json:"recent_count,omitempty"`
	Results     []T     `json:"results"`
}

// Event is a security event
type Event struct {
	ID          ID        `json:"id"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	SourceIP    string    `json:"source_ip,omitempty"`
	User        string    `json:"user,omitempty"`
	Department  ID        `json:"department,omitempty"`
	IsResolved  bool      `json:"is_resolved"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventStats aggregates events by severity
type EventStats struct {
	Total          int            `json:"total"`
	SeverityCounts map[string]int `json:"severity_counts"`
}

// Count returns the number of events with severity, case-insensitively
func (s EventStats) Count(severity string) int {
	if n, ok := s.SeverityCounts[strings.ToUpper(severity)]; ok {
		return n
	}
	return s.SeverityCounts[strings.ToLower(severity)]
}

// Analysis is an AI assessment of an event
type Analysis struct {
	Analysis        string   `json:"analysis"`
	RiskLevel       string   `json:"risk_level,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Permission is an access grant on a resource
type Permission struct {
	ID           ID     `json:"id"`
	User         string `json:"user,omitempty"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	AccessLevel  string `json:"access_level,omitempty"`
}

// AIRequest is an entry of the AI usage log
type AIRequest struct {
	ID          ID        `json:"id"`
	User        string    `json:"user,omitempty"`
	RequestType string    `json:"request_type,omitempty"`
	Query       string    `json:"query,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BankFile is a stored document's metadata
type BankFile struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	FileType    string    `json:"file_type,omitempty"`
	Sensitivity string    `json:"sensitivity,omitempty"`
	Description string    `json:"description,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AccessLog records one access to a file
type AccessLog struct {
	ID        ID        `json:"id"`
	File      ID        `json:"file"`
	User      string    `json:"user,omitempty"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatPreferences tune assistant replies
type ChatPreferences struct {
	ResponseMode string `json:"response_mode" yaml:"response_mode"`
	ShowSources  bool   `json:"show_sources" yaml:"show_sources"`
	AutoAnalyze  bool   `json:"auto_analyze" yaml:"auto_analyze"`
}

// ChatRequest is the body of POST /ai/chat/
type ChatRequest struct {
	Message     string           `json:"message"`
	Preferences *ChatPreferences `json:"preferences,omitempty"`
}

// Source is a document the assistant cited
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ChatReply is the assistant's answer
type ChatReply struct {
	Message          string   `json:"message"`
	Sources          []Source `json:"sources,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// EventFilter narrows GET /security/events/
type EventFilter struct {
	Severity   []string
	Status     []string
	Type       []string
	Category   string
	From       string
	To         string
	Search     string
	IsResolved *bool
	Limit      int
	Sort       string
}

// Values encodes the filter as query parameters; empty fields are omitted
func (f EventFilter) Values() url.Values {
	q := url.Values{}
	setList(q, "severity", f.Severity)
	setList(q, "status", f.Status)
	setList(q, "type", f.Type)
	setString(q, "category", f.Category)
	setString(q, "from_date", f.From)
	setString(q, "to_date", f.To)
	setString(q, "search", f.Search)
	setString(q, "sort", f.Sort)
	if f.IsResolved != nil {
		q.Set("is_resolved", strconv.FormatBool(*f.IsResolved))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// FileFilter narrows GET /files/bank-files/
type FileFilter struct {
	FileType    string
	Sensitivity string
	Search      string
	Limit       int
	Sort        string
}

// Values encodes the filter as query parameters; empty fields are omitted
func (f FileFilter) Values() url.Values {
	q := url.Values{}
	setString(q, "file_type", f.FileType)
	setString(q, "sensitivity", f.Sensitivity)
	setString(q, "search", f.Search)
	setString(q, "sort", f.Sort)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setList(q url.Values, key string, values []string) {
	if len(values) > 0 {
		q.Set(key, strings.Join(values, ","))
	}
}
