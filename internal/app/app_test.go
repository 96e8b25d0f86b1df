package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/config"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/nav"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/session"
	"github.com/felixgeelhaar/bankshield/internal/testutil/fakebackend"
	"github.com/felixgeelhaar/bankshield/internal/tokenstore"
)

func newApp(t *testing.T, backend *fakebackend.Backend, store tokenstore.Store, start string, strict bool) *App {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = backend.URL()
	cfg.API.StrictContract = strict

	a, err := New(cfg,
		WithStore(store),
		WithLogger(log.Discard()),
		WithPreferencesFile(filepath.Join(t.TempDir(), "assistant.yaml")),
		WithStartLocation(start),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestStart_WithoutCredentialGoesToLogin(t *testing.T) {
	backend := fakebackend.New(t)
	a := newApp(t, backend, tokenstore.NewMemoryStore(), nav.Events, false)

	a.Start(context.Background())

	assert.Equal(t, session.Unauthenticated, a.Session.Snapshot().Status)
	assert.Equal(t, nav.Login, a.Router.Location())
	assert.Equal(t, 0, backend.Hits("GET /auth/user/"))
}

func TestStart_RestoresStoredSession(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: backend.IssueToken("analyst")}))
	a := newApp(t, backend, store, nav.Events, true)

	a.Start(context.Background())

	snap := a.Session.Snapshot()
	assert.Equal(t, session.Authenticated, snap.Status)
	assert.Equal(t, "analyst", snap.User.Username)
	assert.Equal(t, nav.Events, a.Router.Location(), "a restored session stays where it was")
}

func TestExpiredSessionRedirectsOnce(t *testing.T) {
	backend := fakebackend.New(t)
	a := newApp(t, backend, tokenstore.NewMemoryStore(), nav.Login, true)
	ctx := context.Background()

	redirects := 0
	a.Router.Subscribe(func(path string) {
		if path == nav.Login {
			redirects++
		}
	})

	require.NoError(t, a.Session.Login(ctx, "admin", "admin123"))
	assert.Equal(t, nav.Dashboard, a.Router.Location(), "signing in leaves the login screen")

	backend.RevokeAll()
	_, err := a.Client.ListFiles(ctx, api.FileFilter{})
	require.Error(t, err)
	_, err = a.Client.EventStats(ctx)
	require.Error(t, err)

	assert.Equal(t, 1, redirects)
	assert.Equal(t, nav.Login, a.Router.Location())
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.SessionInvalidations))
	_, ok, err := a.Store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScreensShareTheSession(t *testing.T) {
	backend := fakebackend.New(t)
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(tokenstore.Credential{AccessToken: backend.IssueToken("admin")}))
	a := newApp(t, backend, store, nav.Dashboard, true)
	a.Start(context.Background())

	dash := a.Dashboard()
	dash.Activate(struct{}{})
	dash.Wait()
	dash.Deactivate()
	require.Equal(t, coordinator.Success, dash.State().Phase)

	files := a.Files()
	files.Activate(screens.FileQuery{Limit: 5})
	files.Wait()
	files.Deactivate()
	assert.Equal(t, coordinator.Success, files.State().Phase)

	events := a.Events()
	events.Activate(screens.EventQuery{Severity: "high"})
	events.Wait()
	events.Deactivate()
	assert.Equal(t, 1, events.State().Data.Count)

	detail := a.EventDetail()
	detail.Activate("1")
	detail.Wait()
	detail.Deactivate()
	assert.Equal(t, "LOGIN_FAILED", detail.State().Data.EventType)

	assert.Regexp(t, `^Token tok-admin-`, backend.LastHeader("GET /security/events/{id}/", "Authorization"))
}
