package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/felixgeelhaar/bankshield/internal/contract"
)

type funcChecker struct {
	name string
	fn   func(ctx context.Context) *Result
}

func (f funcChecker) Name() string                      { return f.name }
func (f funcChecker) Check(ctx context.Context) *Result { return f.fn(ctx) }

// NewCheck adapts a function to a Checker
func NewCheck(name string, fn func(ctx context.Context) *Result) Checker {
	return funcChecker{name: name, fn: fn}
}

// BackendChecker verifies the backend answers HTTP. It sends an
// unauthenticated request, so a 401 counts as reachable.
type BackendChecker struct {
	BaseURL string
	Client  *http.Client
}

// Name implements Checker
func (c *BackendChecker) Name() string { return "backend" }

// Check implements Checker
func (c *BackendChecker) Check(ctx context.Context) *Result {
	target := strings.TrimRight(c.BaseURL, "/") + "/auth/user/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Unhealthy("invalid backend URL").WithDetail("error", err.Error())
	}
	req.Header.Set("Accept", "application/json")

	hc := c.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Unhealthy("backend unreachable").
			WithDetail("url", c.BaseURL).
			WithDetail("error", err.Error())
	}
	resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 500:
		return Degraded(fmt.Sprintf("backend answered %d", resp.StatusCode)).WithDetail("url", c.BaseURL)
	case resp.StatusCode == http.StatusNotFound:
		return Degraded("backend reachable but the API was not found; check api.base_url").WithDetail("url", c.BaseURL)
	}
	return Healthy("backend reachable").WithDetail("url", c.BaseURL)
}

// CredentialFileChecker inspects the stored credential file
type CredentialFileChecker struct {
	Path string
}

// Name implements Checker
func (c *CredentialFileChecker) Name() string { return "credential-file" }

// Check implements Checker
func (c *CredentialFileChecker) Check(context.Context) *Result {
	info, err := os.Stat(c.Path)
	switch {
	case os.IsNotExist(err):
		return Degraded("no stored session").WithDetail("path", c.Path)
	case err != nil:
		return Unhealthy("credential file unreadable").WithDetail("error", err.Error())
	case info.Mode().Perm()&0o077 != 0:
		return Degraded(fmt.Sprintf("credential file is accessible by other users (%04o)", info.Mode().Perm())).
			WithDetail("path", c.Path)
	}
	return Healthy("credential file present").WithDetail("path", c.Path)
}

// ContractChecker verifies the embedded API description parses
type ContractChecker struct{}

// Name implements Checker
func (ContractChecker) Name() string { return "api-contract" }

// Check implements Checker
func (ContractChecker) Check(context.Context) *Result {
	v, err := contract.Load()
	if err != nil {
		return Unhealthy("embedded API contract is invalid").WithDetail("error", err.Error())
	}
	return Healthy(fmt.Sprintf("%d operations described", len(v.Operations())))
}
