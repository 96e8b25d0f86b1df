package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/bankshield/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or invalid local input
	UsageError = 2

	// AuthError indicates the backend rejected the session credential
	AuthError = 3

	// PermissionDenied indicates the account lacks permission for the resource
	PermissionDenied = 4

	// NetworkError indicates the backend could not be reached
	NetworkError = 5

	// ServerError indicates the backend failed or returned a malformed payload
	ServerError = 6

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code using its classification.
// Unclassified errors fall back to cobra's usage error messages.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.KindOf(err) {
	case errors.KindValidation:
		return UsageError
	case errors.KindUnauthorized:
		return AuthError
	case errors.KindForbidden:
		return PermissionDenied
	case errors.KindTransport:
		return NetworkError
	case errors.KindServer:
		return ServerError
	case errors.KindRequest:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or input)"
	case AuthError:
		return "Authentication error"
	case PermissionDenied:
		return "Permission denied"
	case NetworkError:
		return "Network error"
	case ServerError:
		return "Server error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
