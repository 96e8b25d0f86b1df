package api

import (
	"context"
	"net/http"
	"net/url"
)

// ListEvents returns security events matching filter
func (c *Client) ListEvents(ctx context.Context, filter EventFilter) (*Page[Event], error) {
	var page Page[Event]
	if err := c.do(ctx, http.MethodGet, "/security/events/", filter.Values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetEvent returns a single event
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	var event Event
	if err := c.do(ctx, http.MethodGet, "/security/events/"+url.PathEscape(id)+"/", nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// AnalyzeEvent asks the backend to run an AI analysis of a stored event
func (c *Client) AnalyzeEvent(ctx context.Context, id string) (*Analysis, error) {
	var analysis Analysis
	if err := c.do(ctx, http.MethodPost, "/security/events/"+url.PathEscape(id)+"/analyze/", nil, nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// EventStats returns event counts by severity
func (c *Client) EventStats(ctx context.Context) (*EventStats, error) {
	var stats EventStats
	if err := c.do(ctx, http.MethodGet, "/security/events/stats/", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListPermissions returns access grants
func (c *Client) ListPermissions(ctx context.Context, params url.Values) (*Page[Permission], error) {
	var page Page[Permission]
	if err := c.do(ctx, http.MethodGet, "/security/permissions/", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// VerifyAccess asks whether the current account may access a resource
func (c *Client) VerifyAccess(ctx context.Context, resourceType, resourceID string) (bool, error) {
	var resp struct {
		HasAccess bool `json:"has_access"`
	}
	body := map[string]string{"resource_type": resourceType, "resource_id": resourceID}
	if err := c.do(ctx, http.MethodPost, "/security/permissions/verify_access/", nil, body, &resp); err != nil {
		return false, err
	}
	return resp.HasAccess, nil
}

// ListAIRequests returns the AI usage log
func (c *Client) ListAIRequests(ctx context.Context, params url.Values) (*Page[AIRequest], error) {
	var page Page[AIRequest]
	if err := c.do(ctx, http.MethodGet, "/security/ai-requests/", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
