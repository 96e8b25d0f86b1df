package exitcode

import (
	"errors"
	"fmt"
	"testing"

	bserrors "github.com/felixgeelhaar/bankshield/internal/errors"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error returns success", nil, Success},
		{"validation", bserrors.NewRequired("username"), UsageError},
		{"unauthorized", bserrors.FromStatus(401, nil), AuthError},
		{"forbidden", bserrors.FromStatus(403, nil), PermissionDenied},
		{"transport", bserrors.NewTransport(errors.New("refused")), NetworkError},
		{"server", bserrors.FromStatus(503, nil), ServerError},
		{"not found", bserrors.FromStatus(404, nil), GeneralError},
		{"wrapped classification", fmt.Errorf("login failed: %w", bserrors.FromStatus(401, nil)), AuthError},
		{"cobra unknown flag", errors.New("unknown flag: --nope"), UsageError},
		{"cobra arg count", errors.New("accepts 1 arg(s), received 0"), UsageError},
		{"plain error", errors.New("something broke"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	codes := []int{Success, GeneralError, UsageError, AuthError, PermissionDenied, NetworkError, ServerError, Interrupted}
	seen := map[string]bool{}
	for _, code := range codes {
		desc := GetExitCodeDescription(code)
		if desc == "Unknown error" {
			t.Errorf("code %d has no description", code)
		}
		if seen[desc] {
			t.Errorf("duplicate description %q", desc)
		}
		seen[desc] = true
	}

	if GetExitCodeDescription(99) != "Unknown error" {
		t.Error("unexpected description for unknown code")
	}
}
