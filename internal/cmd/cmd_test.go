package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/exitcode"
	"github.com/felixgeelhaar/bankshield/internal/testutil/fakebackend"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// setupCLI points the CLI at a fresh backend with an empty home directory
func setupCLI(t *testing.T) *fakebackend.Backend {
	t.Helper()
	backend := fakebackend.New(t)
	home := t.TempDir()

	t.Setenv("HOME", home)
	t.Setenv("CI", "true")
	t.Setenv("BANKSHIELD_API_URL", backend.URL())
	t.Setenv("BANKSHIELD_TOKEN_FILE", filepath.Join(home, ".bankshield", "credentials.json"))
	t.Setenv("BANKSHIELD_LOG_LEVEL", "error")
	return backend
}

// resetFlags restores every flag to its default so runs do not leak into each other
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))

	err := rootCmd.ExecuteContext(context.Background())
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

func login(t *testing.T, username, password string) {
	t.Helper()
	res := run(t, password+"\n", "auth", "login", "-u", username, "--password-stdin")
	require.NoError(t, res.err)
}

func TestAuthLogin(t *testing.T) {
	backend := setupCLI(t)

	res := run(t, "admin123\n", "auth", "login", "--username", "admin", "--password-stdin")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Signed in as Ada (admin)")
	assert.Equal(t, 1, backend.Hits("POST /auth/login/"))

	_, err := os.Stat(os.Getenv("BANKSHIELD_TOKEN_FILE"))
	assert.NoError(t, err, "credential is persisted")

	res = run(t, "", "auth", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "authenticated")
	assert.Contains(t, res.stdout, "Retail Banking")
}

func TestAuthLogin_InvalidCredentials(t *testing.T) {
	setupCLI(t)

	res := run(t, "wrong\n", "auth", "login", "-u", "admin", "--password-stdin")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid username or password.")
	var e *errors.Error
	require.True(t, errors.As(res.err, &e))
	assert.Equal(t, errors.ErrCodeInvalidCredentials, e.Code)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
}

func TestAuthLogin_CredentialRejectedAfterSignIn(t *testing.T) {
	backend := setupCLI(t)
	backend.Fail("GET /auth/departments/", 401, `{"detail":"Invalid token."}`)

	res := run(t, "admin123\n", "auth", "login", "-u", "admin", "--password-stdin")
	require.Error(t, res.err)
	assert.NotContains(t, res.stdout, "Signed in as")
	assert.Contains(t, res.err.Error(), "session has expired")
	var e *errors.Error
	require.True(t, errors.As(res.err, &e))
	assert.Equal(t, errors.ErrCodeSessionExpired, e.Code)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))

	_, err := os.Stat(os.Getenv("BANKSHIELD_TOKEN_FILE"))
	assert.True(t, os.IsNotExist(err), "rejected credential is not kept")
}

func TestAuthLogin_AlreadySignedIn(t *testing.T) {
	setupCLI(t)
	login(t, "analyst", "analyst123")

	res := run(t, "admin123\n", "auth", "login", "-u", "admin", "--password-stdin")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already signed in as analyst")
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}

func TestAuthLogout(t *testing.T) {
	backend := setupCLI(t)
	login(t, "admin", "admin123")

	res := run(t, "", "auth", "logout")
	require.NoError(t, res.err)
	assert.Equal(t, 1, backend.Hits("POST /auth/logout/"))

	res = run(t, "", "auth", "status", "-o", "json")
	require.NoError(t, res.err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &status))
	assert.Equal(t, "unauthenticated", status["status"])

	res = run(t, "", "auth", "logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Not signed in")
}

func TestAuthProfileUpdate(t *testing.T) {
	backend := setupCLI(t)
	login(t, "analyst", "analyst123")

	res := run(t, "", "auth", "profile", "--first-name", "Grace", "--email", "grace@bank.example")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Grace")
	assert.Contains(t, res.stdout, "grace@bank.example")
	assert.Equal(t, 1, backend.Hits("PATCH /auth/user/"))
}

func TestAuthChangePassword(t *testing.T) {
	setupCLI(t)
	login(t, "analyst", "analyst123")

	res := run(t, "analyst123\nn3w-secret!\n", "auth", "change-password")
	require.NoError(t, res.err)

	res = run(t, "", "auth", "logout")
	require.NoError(t, res.err)
	login(t, "analyst", "n3w-secret!")
}

func TestCommandsRequireSession(t *testing.T) {
	backend := setupCLI(t)

	for _, args := range [][]string{
		{"events", "list"},
		{"files", "list"},
		{"chat", "hello"},
		{"dashboard", "--once"},
	} {
		res := run(t, "", args...)
		require.Error(t, res.err, args)
		assert.Equal(t, errors.KindUnauthorized, errors.KindOf(res.err), args)
		assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err), args)
	}
	assert.Equal(t, 0, backend.Hits("GET /security/events/"))
}

func TestEventsList(t *testing.T) {
	setupCLI(t)
	login(t, "admin", "admin123")

	res := run(t, "", "events", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "LOGIN_FAILED")
	assert.Contains(t, res.stdout, "DATA_EXPORT")
	assert.Contains(t, res.stdout, "PORT_SCAN")

	res = run(t, "", "events", "list", "--severity", "critical", "-o", "json")
	require.NoError(t, res.err)
	var page struct {
		Results []struct {
			EventType string `json:"event_type"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "DATA_EXPORT", page.Results[0].EventType)
}

func TestEventsList_InvalidFilters(t *testing.T) {
	backend := setupCLI(t)
	login(t, "admin", "admin123")

	res := run(t, "", "events", "list", "--from", "01/10/2026")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))

	res = run(t, "", "events", "list", "--resolved", "maybe")
	require.Error(t, res.err)

	assert.Equal(t, 0, backend.Hits("GET /security/events/"))
}

func TestEventsGetAndStats(t *testing.T) {
	setupCLI(t)
	login(t, "admin", "admin123")

	res := run(t, "", "events", "get", "2")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Bulk export of client data")

	res = run(t, "", "events", "stats", "-o", "json")
	require.NoError(t, res.err)
	var summary eventSummary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.NotEmpty(t, summary.ThreatLevel)
}

func TestEventsAnalyze_RequiresOneSource(t *testing.T) {
	setupCLI(t)

	res := run(t, "", "events", "analyze")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}

func TestFilesUploadAndDownload(t *testing.T) {
	backend := setupCLI(t)
	login(t, "admin", "admin123")

	src := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(src, []byte("id,amount\n1,100\n"), 0600))

	res := run(t, "", "files", "upload", src, "--type", "ledger", "--sensitivity", "internal")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "ledger.csv")
	assert.Contains(t, res.stderr, "File uploaded")
	content, ok := backend.Uploaded("ledger.csv")
	require.True(t, ok)
	assert.Equal(t, "id,amount\n1,100\n", content)

	dest := filepath.Join(t.TempDir(), "q3.pdf")
	res = run(t, "", "files", "download", "1", "-O", dest)
	require.NoError(t, res.err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "q3 numbers\n", string(data))

	sum := blake3.Sum256(data)
	assert.Contains(t, res.stdout, hex.EncodeToString(sum[:]))
}

func TestFilesDownload_ExistingTarget(t *testing.T) {
	setupCLI(t)
	login(t, "admin", "admin123")

	dest := filepath.Join(t.TempDir(), "q3.pdf")
	require.NoError(t, os.WriteFile(dest, []byte("keep me"), 0600))

	res := run(t, "", "files", "download", "1", "-O", dest)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already exists")
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data), "existing file is untouched")

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial download is left behind")

	res = run(t, "", "files", "download", "1", "-O", dest, "--force")
	require.NoError(t, res.err)
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "q3 numbers\n", string(data))
}

func TestFilesUpload_NoPromptOutsideTerminal(t *testing.T) {
	backend := setupCLI(t)
	login(t, "admin", "admin123")

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0600))

	res := run(t, "", "files", "upload", src)
	require.NoError(t, res.err)
	_, ok := backend.Uploaded("notes.txt")
	assert.True(t, ok)
}

func TestFilesList(t *testing.T) {
	setupCLI(t)
	login(t, "analyst", "analyst123")

	res := run(t, "", "files", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "q3-report.pdf")
	assert.Contains(t, res.stdout, "confidential")
}

func TestAccessCheck(t *testing.T) {
	setupCLI(t)
	login(t, "analyst", "analyst123")

	res := run(t, "", "access", "check", "department", "2")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "granted")

	res = run(t, "", "access", "check", "department", "1")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "denied")
	assert.Equal(t, exitcode.PermissionDenied, exitcode.DetermineExitCode(res.err))
}

func TestChat(t *testing.T) {
	backend := setupCLI(t)
	login(t, "analyst", "analyst123")
	backend.SetChatReply("Two alerts need attention.")

	res := run(t, "", "chat", "what", "needs", "attention?")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Two alerts need attention.")
	assert.Equal(t, 1, backend.Hits("POST /ai/chat/"))
}

func TestChatPreferences(t *testing.T) {
	setupCLI(t)

	res := run(t, "", "chat", "preferences", "--mode", "concise", "--sources=false")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "concise")

	res = run(t, "", "chat", "preferences", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "concise")
	assert.NotContains(t, res.stdout, `"show_sources": true`)
}

func TestDashboardOnce(t *testing.T) {
	setupCLI(t)
	login(t, "admin", "admin123")

	res := run(t, "", "dashboard", "--once")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Security score:")
	assert.Contains(t, res.stdout, "q3-report.pdf")
}

func TestConfigSetGet(t *testing.T) {
	setupCLI(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	res := run(t, "", "--config", path, "config", "set", "dashboard.refresh_interval", "2m")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, path)

	res = run(t, "", "--config", path, "config", "get", "dashboard.refresh_interval")
	require.NoError(t, res.err)
	assert.Equal(t, "2m0s\n", res.stdout)

	res = run(t, "", "--config", path, "config", "get", "dashboard.nope")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}

func TestConfigView_RedactsPassphrase(t *testing.T) {
	setupCLI(t)
	t.Setenv("BANKSHIELD_TOKEN_PASSPHRASE", "hunter2")

	res := run(t, "", "config", "view")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "auth.passphrase")
	assert.NotContains(t, res.stdout, "hunter2")
	assert.Contains(t, res.stdout, os.Getenv("BANKSHIELD_API_URL"))
}

func TestVersion(t *testing.T) {
	res := run(t, "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "BankShield")

	res = run(t, "", "version", "--json")
	require.NoError(t, res.err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, "v1", info["api_version"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "2.0 MiB", formatSize(2<<20))
}

func TestDoctor(t *testing.T) {
	setupCLI(t)

	res := run(t, "", "doctor")
	require.NoError(t, res.err, "signed out is degraded, not unhealthy")
	assert.Contains(t, res.stdout, "backend")
	assert.Contains(t, res.stdout, "not signed in")
	assert.Contains(t, res.stdout, "DEGRADED")

	login(t, "admin", "admin123")
	res = run(t, "", "doctor", "-o", "json")
	require.NoError(t, res.err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name string `json:"name"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, "healthy", report.Status)
	assert.Len(t, report.Checks, 5)
}

func TestDoctor_UnreachableBackend(t *testing.T) {
	setupCLI(t)
	t.Setenv("BANKSHIELD_API_URL", "http://127.0.0.1:1/api")

	res := run(t, "", "doctor", "--timeout", "2s")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "UNHEALTHY")
}
