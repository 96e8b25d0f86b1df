package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error by how the console reacts to it
type Kind int

const (
	// KindUnknown is an error that was not produced by this package
	KindUnknown Kind = iota
	// KindValidation is malformed local input; it never reaches the network
	KindValidation
	// KindUnauthorized means the backend rejected the credential
	KindUnauthorized
	// KindForbidden means the credential lacks permission for the resource
	KindForbidden
	// KindTransport is a network failure, timeout or unreachable backend
	KindTransport
	// KindServer is a 5xx status or a malformed payload
	KindServer
	// KindRequest is any other non-2xx status passed through from the backend
	KindRequest
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error codes
const (
	// Local input errors (INPUT-001 to INPUT-099)
	ErrCodeInputRequired    ErrorCode = "INPUT-001"
	ErrCodeInputInvalid     ErrorCode = "INPUT-002"
	ErrCodeOperationPending ErrorCode = "INPUT-003"

	// Authentication errors (AUTH-001 to AUTH-099)
	ErrCodeInvalidCredentials ErrorCode = "AUTH-001"
	ErrCodeSessionExpired     ErrorCode = "AUTH-002"
	ErrCodeAccessDenied       ErrorCode = "AUTH-003"
	ErrCodeNotAuthenticated   ErrorCode = "AUTH-004"

	// HTTP status pass-through (HTTP-001 to HTTP-099)
	ErrCodeHTTPStatus      ErrorCode = "HTTP-001"
	ErrCodeServerFailure   ErrorCode = "HTTP-002"
	ErrCodeMalformedBody   ErrorCode = "HTTP-003"
	ErrCodeContractFailure ErrorCode = "HTTP-004"

	// Network errors (NET-001 to NET-099)
	ErrCodeNetwork ErrorCode = "NET-001"
	ErrCodeTimeout ErrorCode = "NET-002"

	// Local storage errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal   ErrorCode = "IO-003"
)

// Error is a classified error carrying enough context to decide user-facing messaging
type Error struct {
	Kind        Kind
	Code        ErrorCode
	Message     string
	Status      int
	Payload     []byte
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(kind Kind, code ErrorCode, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error wrapping an existing error
func Wrap(kind Kind, code ErrorCode, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// NewValidation creates a local input error
func NewValidation(message string) *Error {
	return New(KindValidation, ErrCodeInputInvalid, message)
}

// NewRequired creates an error for a missing required input
func NewRequired(field string) *Error {
	return New(KindValidation, ErrCodeInputRequired, fmt.Sprintf("%s is required", field))
}

// NewTransport creates a network failure error
func NewTransport(cause error) *Error {
	return Wrap(KindTransport, ErrCodeNetwork, "backend is unreachable", cause).
		WithSuggestion("Check your network connection").
		WithSuggestion("Verify the API URL with 'bankshield config get api.base_url'")
}

// NewServer creates an error for a malformed or failed backend response
func NewServer(message string, cause error) *Error {
	return Wrap(KindServer, ErrCodeMalformedBody, message, cause)
}

// FromStatus classifies a non-2xx HTTP response, keeping the raw payload
func FromStatus(status int, payload []byte) *Error {
	e := &Error{
		Status:  status,
		Payload: payload,
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
		e.Code = ErrCodeSessionExpired
		e.Message = "authentication required"
		e.Suggestions = []string{"Run 'bankshield auth login' to sign in again"}
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
		e.Code = ErrCodeAccessDenied
		e.Message = "insufficient permissions"
		e.Suggestions = []string{"Contact your administrator to request access"}
	case status >= 500:
		e.Kind = KindServer
		e.Code = ErrCodeServerFailure
		e.Message = fmt.Sprintf("server error (status %d)", status)
	default:
		e.Kind = KindRequest
		e.Code = ErrCodeHTTPStatus
		e.Message = fmt.Sprintf("request failed with status %d", status)
	}

	if detail := payloadDetail(payload); detail != "" {
		e.Message = e.Message + ": " + detail
	}

	return e
}

// payloadDetail extracts the backend's own message from common error payload shapes
func payloadDetail(payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	switch {
	case body.Error != "":
		return body.Error
	case body.Detail != "":
		return body.Detail
	default:
		return body.Message
	}
}

// KindOf returns the kind of err, or KindUnknown when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As is errors.As re-exported so callers don't need both packages
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return 0
}

// FieldMessages aggregates a field-level validation payload into one message.
//
// Payloads look like {"email": ["Enter a valid email."], "username": "taken"}.
// Fields are sorted so the message is stable. Returns "" when the payload is not
// a JSON object.
func FieldMessages(payload []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || len(fields) == 0 {
		return ""
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		msgs := flatten(fields[name])
		if len(msgs) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(msgs, ", ")))
	}
	return strings.Join(parts, "; ")
}

func flatten(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, flatten(item)...)
		}
		return out
	}
	var other any
	if err := json.Unmarshal(raw, &other); err == nil && other != nil {
		return []string{fmt.Sprint(other)}
	}
	return nil
}

// UserMessage returns a short message suitable for a notification body
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindTransport:
		return "The server could not be reached. Check your connection and try again."
	case KindUnauthorized:
		return "Your session has expired. Please sign in again."
	case KindForbidden:
		return "You do not have permission to perform this action."
	case KindServer:
		return "The server failed to process the request. Please try again later."
	}
	if payloadDetail(e.Payload) == "" {
		if fields := FieldMessages(e.Payload); fields != "" {
			return fields
		}
	}
	return e.Message
}
