// Package health runs the diagnostics behind `bankshield doctor`.
//
// Each Checker verifies one dependency of the client: the configuration, the
// backend, the stored credential or the API contract. A Manager runs them in
// parallel, each under its own timeout, and reports results in the order the
// checkers were added.
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency
type Checker interface {
	// Name is lowercase with hyphens, e.g. "backend" or "credential-file"
	Name() string

	// Check must respect the context deadline
	Check(ctx context.Context) *Result
}

// Status represents the health check status.
type Status string

const (
	// StatusHealthy indicates the checked component is fully operational.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the client works with reduced functionality,
	// e.g. nobody is signed in yet.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means commands that need the component will fail.
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check
type Result struct {
	Status  Status         `json:"status" yaml:"status"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Latency time.Duration  `json:"latency" yaml:"latency"`
}

// NewResult creates a new health check result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail to the result and returns the result for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// Healthy creates a healthy result with the given message.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result with the given message.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result with the given message.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
