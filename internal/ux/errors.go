package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/bankshield/internal/errors"
)

// ErrorWithSuggestion wraps an unclassified error with a recovery suggestion
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds recovery suggestions to errors that carry none
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var e *errors.Error
	if errors.As(err, &e) {
		if len(e.Suggestions) > 0 {
			return err
		}
		switch e.Kind {
		case errors.KindUnauthorized:
			e.WithSuggestion("Sign in with 'bankshield auth login'")
		case errors.KindForbidden:
			e.WithSuggestion("Ask an administrator to grant access, then sign in again")
		case errors.KindServer:
			e.WithSuggestion("Retry later or run with --log-level debug for details")
		}
		return err
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return NewErrorWithSuggestion(err, "Run 'bankshield --help' to list commands and flags")
	}

	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check the permissions of ~/.bankshield and the credential file")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}
