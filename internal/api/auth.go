package api

import (
	"context"
	"net/http"
)

// Login exchanges a username and password for a credential
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login/", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session on the backend
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout/", nil, nil, nil)
}

// CurrentUser returns the account the stored credential belongs to
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/user/", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile patches the current user and returns the fields the backend echoed
func (c *Client) UpdateProfile(ctx context.Context, partial map[string]any) (map[string]any, error) {
	var fields map[string]any
	if err := c.do(ctx, http.MethodPatch, "/auth/user/", nil, partial, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ChangePassword changes the current user's password
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/change-password/", nil, req, nil)
}

// RequestPasswordReset mails a reset token to email
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/request-reset-password/", nil, map[string]string{"email": email}, nil)
}

// ConfirmPasswordReset sets a new password using a reset token
func (c *Client) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirm) error {
	return c.do(ctx, http.MethodPost, "/auth/confirm-reset-password/", nil, req, nil)
}

// Departments lists the departments visible to the current account
func (c *Client) Departments(ctx context.Context) ([]Department, error) {
	var deps []Department
	if err := c.do(ctx, http.MethodGet, "/auth/departments/", nil, nil, &deps); err != nil {
		return nil, err
	}
	return deps, nil
}
