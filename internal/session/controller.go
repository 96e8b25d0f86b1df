// Package session owns the authenticated-user state machine.
//
// The Controller is the only writer of session state and of the token store.
// Everything else reads Snapshots or subscribes to them.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/metrics"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/tokenstore"
)

// Backend is the subset of the API the controller drives
type Backend interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*api.User, error)
	UpdateProfile(ctx context.Context, partial map[string]any) (map[string]any, error)
	ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, req api.PasswordResetConfirm) error
	Departments(ctx context.Context) ([]api.Department, error)
	VerifyAccess(ctx context.Context, resourceType, resourceID string) (bool, error)
}

var (
	// ErrOperationInFlight rejects a login or restore while another one is running
	ErrOperationInFlight = errors.New(errors.KindValidation, errors.ErrCodeOperationPending,
		"another sign-in operation is already in progress")

	// ErrSuperseded is returned by a login that finished after a logout
	ErrSuperseded = errors.New(errors.KindValidation, errors.ErrCodeOperationPending,
		"sign-in was cancelled by a sign-out")

	// ErrNotAuthenticated is returned by operations that need a signed-in user
	ErrNotAuthenticated = errors.New(errors.KindValidation, errors.ErrCodeNotAuthenticated,
		"not signed in")

	// ErrAlreadyAuthenticated is returned by Login while a user is signed in
	ErrAlreadyAuthenticated = errors.New(errors.KindValidation, errors.ErrCodeInputInvalid,
		"already signed in; sign out first")
)

// Controller drives the session state machine
type Controller struct {
	backend  Backend
	store    tokenstore.Store
	notifier notify.Notifier
	logger   *log.Logger
	metrics  *metrics.Metrics

	// deliverMu orders deliveries so the last snapshot a subscriber sees is current
	deliverMu sync.Mutex

	mu          sync.Mutex
	status      Status
	user        *api.User
	departments []api.Department
	lastErr     error
	busy        bool
	loggingOut  bool
	// epoch advances on every logout and invalidation so late results can be discarded
	epoch   uint64
	nextSub int
	subs    map[int]func(Snapshot)
}

// Option configures a Controller
type Option func(*Controller)

// WithNotifier reports outcomes through n
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithLogger sets the controller's logger
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics records transitions and invalidations
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates a controller. It starts in Restoring when the store holds a
// credential and in Unauthenticated otherwise; call Restore to settle it.
func New(backend Backend, store tokenstore.Store, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		store:    store,
		notifier: discardNotifier{},
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).WithComponent("session")

	if _, ok, err := store.Load(); err != nil {
		c.logger.Warn("stored credential unreadable", "error", err)
	} else if ok {
		c.status = Restoring
	}
	return c
}

// Snapshot returns the current session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive every new snapshot.
// fn runs on the goroutine that caused the change. It must not block or
// change the controller itself; deliveries are serialized.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Restore validates a stored credential. Without one it settles in
// Unauthenticated without touching the network.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrOperationInFlight
	}
	_, ok, err := c.store.Load()
	if err != nil || !ok {
		c.resetLocked(err)
		c.publishLocked()
		return err
	}
	c.busy = true
	c.lastErr = nil
	c.setStatusLocked(Restoring)
	epoch := c.epoch
	c.publishLocked()

	user, err := c.backend.CurrentUser(ctx)

	c.mu.Lock()
	c.busy = false
	if c.epoch != epoch {
		// Invalidated or logged out while the request was in flight
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrSuperseded
	}
	if err != nil {
		c.logger.LogError(ctx, "session restore failed", err)
		c.clearStoreLocked()
		c.resetLocked(err)
		c.publishLocked()
		return err
	}
	c.user = user
	c.setStatusLocked(Authenticated)
	c.publishLocked()

	c.logger.InfoContext(ctx, "session restored", "username", user.Username)
	return c.loadDepartments(ctx, epoch)
}

// Login signs in with identifier and secret
func (c *Controller) Login(ctx context.Context, identifier, secret string) error {
	if identifier == "" {
		return errors.NewRequired("username")
	}
	if secret == "" {
		return errors.NewRequired("password")
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrOperationInFlight
	}
	if c.status == Authenticated {
		c.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	c.busy = true
	c.lastErr = nil
	c.setStatusLocked(Authenticating)
	epoch := c.epoch
	c.publishLocked()

	resp, err := c.backend.Login(ctx, identifier, secret)
	if err == nil && resp.AccessToken == "" {
		err = errors.NewServer("login response carried no access token", nil)
	}

	c.mu.Lock()
	c.busy = false
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "discarding login result after sign-out")
		return ErrSuperseded
	}
	if err != nil {
		c.resetLocked(err)
		c.publishLocked()
		c.logger.LogError(ctx, "login failed", err)
		c.notifier.Show(notify.Message{Kind: notify.KindError, Title: "Login failed", Body: loginErrorMessage(err)})
		return err
	}

	cred := tokenstore.Credential{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if err := c.store.Save(cred); err != nil {
		c.resetLocked(err)
		c.publishLocked()
		c.notifier.Show(notify.Message{Kind: notify.KindError, Title: "Login failed", Body: "Could not store the session credential."})
		return err
	}
	user := resp.User
	c.user = &user
	c.setStatusLocked(Authenticated)
	c.publishLocked()

	c.logger.InfoContext(ctx, "signed in", "username", user.Username, "role", user.Role)
	c.notifier.Show(notify.Message{Kind: notify.KindSuccess, Title: "Signed in", Body: "Welcome, " + user.GreetingName() + "!"})
	return c.loadDepartments(ctx, epoch)
}

// loadDepartments fetches the visible departments; failure degrades to an empty list.
// It fails only when the session ended while the request was in flight, with
// the error that ended it.
func (c *Controller) loadDepartments(ctx context.Context, epoch uint64) error {
	deps, err := c.backend.Departments(ctx)

	c.mu.Lock()
	if c.epoch != epoch || c.status != Authenticated {
		ended := c.lastErr
		c.mu.Unlock()
		if errors.Is(ended, errors.KindUnauthorized) {
			return ended
		}
		return ErrSuperseded
	}
	if err != nil {
		c.departments = []api.Department{}
		c.publishLocked()
		c.logger.WithError(err).WarnContext(ctx, "department list unavailable")
		c.notifier.Show(notify.Message{Kind: notify.KindWarning, Title: "Departments unavailable",
			Body: "Department data could not be loaded; department views will be empty."})
		return nil
	}
	c.departments = deps
	c.publishLocked()
	return nil
}

// Logout ends the session. The backend call is best-effort; local state is
// always cleared.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	c.loggingOut = true
	_, hasCred, _ := c.store.Load()
	c.mu.Unlock()

	if hasCred {
		if err := c.backend.Logout(ctx); err != nil {
			c.logger.WithError(err).WarnContext(ctx, "backend logout failed")
		}
	}

	c.mu.Lock()
	c.loggingOut = false
	wasSignedIn := c.status == Authenticated
	c.clearStoreLocked()
	c.resetLocked(nil)
	c.publishLocked()

	if wasSignedIn {
		c.logger.InfoContext(ctx, "signed out")
		c.notifier.Show(notify.Message{Kind: notify.KindInfo, Title: "Signed out", Body: "You have been signed out."})
	}
}

// Invalidate ends the session after the backend rejected rejectedToken.
// It acts only when rejectedToken is still the stored credential, so a burst of
// 401s for the same token invalidates once. It reports whether it acted.
func (c *Controller) Invalidate(rejectedToken string) bool {
	c.mu.Lock()
	if c.loggingOut || rejectedToken == "" {
		c.mu.Unlock()
		return false
	}
	cred, ok, err := c.store.Load()
	if err != nil || !ok || cred.AccessToken != rejectedToken {
		c.mu.Unlock()
		return false
	}

	wasSignedIn := c.status == Authenticated
	c.epoch++
	c.clearStoreLocked()
	expired := errors.New(errors.KindUnauthorized, errors.ErrCodeSessionExpired, "session expired")
	c.resetLocked(expired)
	c.publishLocked()

	c.metrics.RecordInvalidation()
	c.logger.Info("session invalidated by backend")
	if wasSignedIn {
		c.notifier.Show(notify.Message{Kind: notify.KindWarning, Title: "Session expired", Body: "Please sign in again."})
	}
	return true
}

// UpdateProfile patches the profile and merges the echoed fields into it
func (c *Controller) UpdateProfile(ctx context.Context, partial map[string]any) (*api.User, error) {
	if !c.Snapshot().IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	fields, err := c.backend.UpdateProfile(ctx, partial)
	if err != nil {
		err = aggregate("profile update failed", err)
		c.notifier.Show(notify.Message{Kind: notify.KindError, Title: "Profile not updated", Body: errors.UserMessage(err)})
		return nil, err
	}

	c.mu.Lock()
	if c.status != Authenticated || c.user == nil {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	merged, err := mergeUser(*c.user, fields)
	if err != nil {
		c.mu.Unlock()
		return nil, errors.NewServer("profile update returned unexpected fields", err)
	}
	c.user = &merged
	c.publishLocked()

	c.notifier.Show(notify.Message{Kind: notify.KindSuccess, Title: "Profile updated"})
	return cloneUser(&merged), nil
}

// ChangePassword changes the signed-in user's password
func (c *Controller) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return errors.NewRequired("current password")
	}
	if newPassword == "" {
		return errors.NewRequired("new password")
	}
	if !c.Snapshot().IsAuthenticated() {
		return ErrNotAuthenticated
	}

	err := c.backend.ChangePassword(ctx, api.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword})
	return c.report(err, "Password changed", "Password not changed")
}

// RequestPasswordReset asks the backend to mail reset instructions
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return errors.NewRequired("email")
	}
	err := c.backend.RequestPasswordReset(ctx, email)
	return c.report(err, "Reset instructions sent", "Password reset failed")
}

// ConfirmPasswordReset sets a new password with a reset token
func (c *Controller) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return errors.NewRequired("reset token")
	}
	if newPassword == "" {
		return errors.NewRequired("new password")
	}
	err := c.backend.ConfirmPasswordReset(ctx, api.PasswordResetConfirm{Token: token, NewPassword: newPassword})
	return c.report(err, "Password reset", "Password reset failed")
}

func (c *Controller) report(err error, success, failure string) error {
	if err != nil {
		err = aggregate(failure, err)
		c.notifier.Show(notify.Message{Kind: notify.KindError, Title: failure, Body: errors.UserMessage(err)})
		return err
	}
	c.notifier.Show(notify.Message{Kind: notify.KindSuccess, Title: success})
	return nil
}

// HasPermission reports whether the signed-in user holds permission name
func (c *Controller) HasPermission(name string) bool {
	return c.Snapshot().HasPermission(name)
}

// HasDepartmentAccess reports whether the signed-in user may see departmentID
func (c *Controller) HasDepartmentAccess(departmentID string) bool {
	return c.Snapshot().HasDepartmentAccess(departmentID)
}

// CheckAccess asks the backend for an access decision. Any failure denies.
func (c *Controller) CheckAccess(ctx context.Context, resourceType, resourceID string) bool {
	if !c.Snapshot().IsAuthenticated() {
		return false
	}
	ok, err := c.backend.VerifyAccess(ctx, resourceType, resourceID)
	if err != nil {
		c.logger.WithError(err).DebugContext(ctx, "access check failed, denying",
			"resource_type", resourceType, "resource_id", resourceID)
		return false
	}
	return ok
}

func (c *Controller) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.metrics.RecordTransition(c.status.String(), s.String())
	c.status = s
}

func (c *Controller) resetLocked(err error) {
	c.user = nil
	c.departments = nil
	c.lastErr = err
	c.setStatusLocked(Unauthenticated)
}

func (c *Controller) clearStoreLocked() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear stored credential", "error", err)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:      c.status,
		User:        cloneUser(c.user),
		Departments: append([]api.Department(nil), c.departments...),
		LastError:   c.lastErr,
	}
	if c.lastErr != nil {
		s.ErrorMessage = loginErrorMessage(c.lastErr)
	}
	return s
}

// publishLocked releases c.mu and delivers the newest snapshot to subscribers
func (c *Controller) publishLocked() {
	c.mu.Unlock()
	c.deliver()
}

// deliver hands every subscriber the state as of the moment it holds deliverMu
func (c *Controller) deliver() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// loginErrorMessage distinguishes bad credentials from infrastructure failures
func loginErrorMessage(err error) string {
	switch errors.KindOf(err) {
	case errors.KindUnauthorized:
		if errors.StatusOf(err) == 0 {
			return "Your session has expired. Please sign in again."
		}
		return "Invalid username or password."
	case errors.KindRequest:
		if errors.StatusOf(err) == 400 {
			return "Invalid username or password."
		}
	case errors.KindTransport:
		return "Cannot reach the server. Check your connection and try again."
	case errors.KindServer:
		return "The server encountered an error. Please try again later."
	}
	return errors.UserMessage(err)
}

// aggregate rewrites a backend failure so its message lists field-level errors
func aggregate(prefix string, err error) error {
	var e *errors.Error
	if !errors.As(err, &e) {
		return err
	}
	out := *e
	if fields := errors.FieldMessages(e.Payload); fields != "" && e.Kind == errors.KindRequest {
		out.Message = prefix + ": " + fields
	} else {
		out.Message = prefix + ": " + e.Message
	}
	return &out
}

// mergeUser overlays fields onto u, keeping every field the backend did not echo
func mergeUser(u api.User, fields map[string]any) (api.User, error) {
	base, err := json.Marshal(u)
	if err != nil {
		return u, err
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return u, err
	}
	for k, v := range fields {
		m[k] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		return u, err
	}
	var merged api.User
	if err := json.Unmarshal(data, &merged); err != nil {
		return u, err
	}
	return merged, nil
}

type discardNotifier struct{}

func (discardNotifier) Show(notify.Message) string { return "" }
