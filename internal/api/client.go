// Package api is the single point of egress to the BankShield backend.
//
// Every request carries the stored credential. A 401 outside the login screen
// invalidates the session and redirects to login; every other failure is
// classified into an *errors.Error and returned to the caller untouched.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/bankshield/internal/contract"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/metrics"
	"github.com/felixgeelhaar/bankshield/internal/nav"
	"github.com/felixgeelhaar/bankshield/internal/tokenstore"
	"github.com/felixgeelhaar/bankshield/internal/version"
)

// DefaultTimeout bounds every request unless the caller's context is shorter
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the credential attached to outgoing requests
type TokenSource interface {
	Load() (tokenstore.Credential, bool, error)
}

// UnauthorizedHandler is told which access token the backend rejected.
// It returns true when it invalidated the session, which triggers the redirect.
type UnauthorizedHandler func(rejectedToken string) bool

// Client is the BankShield backend API client
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	tokens    TokenSource
	navigator nav.Navigator
	validator *contract.Validator
	metrics   *metrics.Metrics
	logger    *log.Logger

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithNavigator lets the client redirect to login after a 401
func WithNavigator(n nav.Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

// WithContract validates every 2xx JSON response against the API contract
func WithContract(v *contract.Validator) Option {
	return func(c *Client) {
		c.validator = v
	}
}

// WithMetrics records request counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new backend API client
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).WithComponent("api")
	return c
}

// OnUnauthorized installs the session invalidation hook
func (c *Client) OnUnauthorized(h UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = h
}

// request describes one backend call
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
}

// send performs req and returns the response for any 2xx status.
// The caller owns the returned body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	target := c.BaseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid, "failed to create request", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("User-Agent", version.GetInfo().UserAgent())
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)

	// The token is read once so a 401 can be attributed to exactly this credential
	var token string
	if c.tokens != nil {
		cred, ok, err := c.tokens.Load()
		if err != nil {
			c.logger.Warn("credential unavailable, sending unauthenticated", "error", err)
		} else if ok {
			token = cred.AccessToken
			httpReq.Header.Set("Authorization", "Token "+token)
		}
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveRequest(req.method, req.path, 0, elapsed)
		tErr := errors.NewTransport(err)
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			tErr.Code = errors.ErrCodeTimeout
			tErr.Message = "request timed out"
		}
		c.metrics.RecordError(tErr.Kind.String())
		c.logger.DebugContext(ctx, "request failed",
			"request_id", requestID, "method", req.method, "path", req.path, "duration", elapsed, "error", err)
		return nil, tErr
	}

	c.metrics.ObserveRequest(req.method, req.path, resp.StatusCode, elapsed)
	c.logger.DebugContext(ctx, "request completed",
		"request_id", requestID, "method", req.method, "path", req.path, "status", resp.StatusCode, "duration", elapsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	apiErr := errors.FromStatus(resp.StatusCode, payload)
	c.metrics.RecordError(apiErr.Kind.String())

	if apiErr.Kind == errors.KindUnauthorized {
		c.handleUnauthorized(ctx, token)
	}
	return nil, apiErr
}

// handleUnauthorized runs the invalidation hook unless the user is already on
// the login screen. A request sent without a credential has no session to
// end and always redirects.
func (c *Client) handleUnauthorized(ctx context.Context, token string) {
	if c.navigator != nil && nav.IsLogin(c.navigator.Location()) {
		return
	}

	if token != "" {
		c.mu.RLock()
		h := c.onUnauthorized
		c.mu.RUnlock()

		if h != nil && !h(token) {
			// Someone else already invalidated this credential
			return
		}
	}

	c.logger.InfoContext(ctx, "credential rejected, redirecting to login")
	if c.navigator != nil {
		c.navigator.Redirect(nav.Login)
	}
}

// do sends a JSON request and decodes a JSON response into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req := request{method: method, path: path, query: query}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid, "failed to marshal request body", err)
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	return c.decode(method, path, resp, out)
}

// decode reads a 2xx response, validates it against the contract and unmarshals it
func (c *Client) decode(method, path string, resp *http.Response, out any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransport(err)
	}

	if c.validator != nil {
		if err := c.validator.ValidateResponse(method, path, resp.StatusCode, resp.Header.Get("Content-Type"), body); err != nil {
			c.metrics.RecordError(errors.KindServer.String())
			return errors.Wrap(errors.KindServer, errors.ErrCodeContractFailure, "response violates the API contract", err)
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordError(errors.KindServer.String())
		return errors.NewServer(fmt.Sprintf("malformed response from %s %s", method, path), err)
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
