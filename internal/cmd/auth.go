package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/session"
	"github.com/felixgeelhaar/bankshield/internal/tui"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out and manage your account",
	Long: `Manage the BankShield session stored on this machine.

The session token is kept in ~/.bankshield/credentials.json (mode 0600).
Set BANKSHIELD_TOKEN_PASSPHRASE to keep it encrypted at rest.

Examples:
  # Sign in interactively
  bankshield auth login

  # Sign in from a script
  printf '%s\n' "$PASSWORD" | bankshield auth login --username analyst --password-stdin

  # Show who is signed in
  bankshield auth status`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to BankShield",
	Long: `Sign in with a username (or email) and password. Missing values are
prompted for when the terminal is interactive.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your profile",
	Long: `Show your profile. Pass --first-name, --last-name or --email to update
those fields; only the fields given are sent.`,
	Args: cobra.NoArgs,
	RunE: runAuthProfile,
}

var authChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change your password",
	Long: `Change your password. The current and new passwords are prompted for,
or read as two lines from stdin when the terminal is not interactive.`,
	Args: cobra.NoArgs,
	RunE: runAuthChangePassword,
}

var authResetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Reset a forgotten password",
}

var authResetRequestCmd = &cobra.Command{
	Use:   "request <email>",
	Short: "Email a password reset token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthResetRequest,
}

var authResetConfirmCmd = &cobra.Command{
	Use:   "confirm <token>",
	Short: "Set a new password using a reset token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthResetConfirm,
}

func init() {
	authLoginCmd.Flags().StringP("username", "u", "", "username or email")
	authLoginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	authProfileCmd.Flags().String("first-name", "", "new first name")
	authProfileCmd.Flags().String("last-name", "", "new last name")
	authProfileCmd.Flags().String("email", "", "new email address")

	authResetPasswordCmd.AddCommand(authResetRequestCmd, authResetConfirmCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd, authProfileCmd,
		authChangePasswordCmd, authResetPasswordCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	var password string
	switch {
	case fromStdin:
		lines, err := readLines(cmd.InOrStdin(), 1)
		if err != nil {
			return err
		}
		password = lines[0]
	case tui.ShouldPrompt():
		creds, err := tui.PromptForCredentials(username)
		if err != nil {
			return err
		}
		username, password = creds.Username, creds.Password
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if snap := s.Session.Snapshot(); snap.IsAuthenticated() {
		return errors.NewValidation(fmt.Sprintf("already signed in as %s", snap.User.Username)).
			WithSuggestion("Run 'bankshield auth logout' first")
	}

	if err := s.Session.Login(cmd.Context(), username, password); err != nil {
		return loginError(err, s.Session.Snapshot().ErrorMessage)
	}

	snap := s.Session.Snapshot()
	if !snap.IsAuthenticated() {
		return requireSession(snap)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", snap.User.FullName(), snap.User.Role) //nolint:errcheck
	return nil
}

// loginError replaces the raw failure with the session's user-facing message,
// keeping its classification for the exit code
func loginError(err error, message string) error {
	var e *errors.Error
	if message == "" || !errors.As(err, &e) || e.Kind == errors.KindValidation {
		return err
	}
	out := &errors.Error{Kind: e.Kind, Code: e.Code, Status: e.Status, Message: message, Suggestions: e.Suggestions}
	// Only the login endpoint's own 401 means the credentials were wrong
	if e.Kind == errors.KindUnauthorized && e.Status != 0 {
		out.Code = errors.ErrCodeInvalidCredentials
		out.Suggestions = []string{"Forgot it? Run 'bankshield auth reset-password request <email>'"}
	}
	return out
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.Session.Snapshot().IsAuthenticated() {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in") //nolint:errcheck
		return nil
	}
	s.Session.Logout(cmd.Context())
	return nil
}

// sessionStatus is the structured form of `auth status`
type sessionStatus struct {
	Status      string           `json:"status" yaml:"status"`
	User        *api.User        `json:"user,omitempty" yaml:"user,omitempty"`
	Departments []api.Department `json:"departments,omitempty" yaml:"departments,omitempty"`
	Error       string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.Session.Snapshot()
	return s.output(cmd, statusOf(snap), func() *ux.Table {
		t := &ux.Table{}
		t.Append("Status:", snap.Status.String())
		if snap.ErrorMessage != "" {
			t.Append("Reason:", snap.ErrorMessage)
		}
		if u := snap.User; u != nil {
			t.Append("User:", fmt.Sprintf("%s (%s)", u.FullName(), u.Username))
			t.Append("Role:", u.Role)
			t.Append("Permissions:", strings.Join(u.Permissions, ", "))
			names := make([]string, 0, len(snap.Departments))
			for _, d := range snap.Departments {
				names = append(names, d.Name)
			}
			t.Append("Departments:", strings.Join(names, ", "))
		}
		return t
	})
}

func statusOf(snap session.Snapshot) sessionStatus {
	return sessionStatus{
		Status:      snap.Status.String(),
		User:        snap.User,
		Departments: snap.Departments,
		Error:       snap.ErrorMessage,
	}
}

func runAuthProfile(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.Session.Snapshot()
	if err := requireSession(snap); err != nil {
		return err
	}

	partial := map[string]any{}
	for flag, field := range map[string]string{
		"first-name": "first_name",
		"last-name":  "last_name",
		"email":      "email",
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			partial[field] = v
		}
	}

	user := snap.User
	if len(partial) > 0 {
		if user, err = s.Session.UpdateProfile(cmd.Context(), partial); err != nil {
			return err
		}
	}

	return s.output(cmd, user, func() *ux.Table {
		t := &ux.Table{}
		t.Append("Username:", user.Username)
		t.Append("Name:", user.FullName())
		t.Append("Email:", user.Email)
		t.Append("Role:", user.Role)
		return t
	})
}

func runAuthChangePassword(cmd *cobra.Command, args []string) error {
	var current, next string
	if tui.ShouldPrompt() {
		var err error
		if current, err = tui.PromptForPassword("Current password"); err != nil {
			return err
		}
		if next, err = tui.PromptForPassword("New password"); err != nil {
			return err
		}
	} else {
		lines, err := readLines(cmd.InOrStdin(), 2)
		if err != nil {
			return err
		}
		current, next = lines[0], lines[1]
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}
	return s.Session.ChangePassword(cmd.Context(), current, next)
}

func runAuthResetRequest(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Session.RequestPasswordReset(cmd.Context(), args[0])
}

func runAuthResetConfirm(cmd *cobra.Command, args []string) error {
	var password string
	if tui.ShouldPrompt() {
		var err error
		if password, err = tui.PromptForPassword("New password"); err != nil {
			return err
		}
	} else {
		lines, err := readLines(cmd.InOrStdin(), 1)
		if err != nil {
			return err
		}
		password = lines[0]
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Session.ConfirmPasswordReset(cmd.Context(), args[0], password)
}

// readLines reads n lines from r, without their line endings
func readLines(r io.Reader, n int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	lines := make([]string, 0, n)
	for len(lines) < n && scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed, "failed to read stdin", err)
	}
	if len(lines) < n {
		return nil, errors.NewValidation(fmt.Sprintf("expected %d line(s) on stdin, got %d", n, len(lines)))
	}
	return lines, nil
}
