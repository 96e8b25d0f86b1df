package api

import (
	"context"
	"net/http"
)

// Chat sends a message to the assistant
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, "/ai/chat/", nil, req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// AnalyzeEventData runs an AI analysis of arbitrary event data
func (c *Client) AnalyzeEventData(ctx context.Context, data any) (*Analysis, error) {
	var analysis Analysis
	if err := c.do(ctx, http.MethodPost, "/security/events/analyze/", nil, data, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// SearchFiles runs the AI-assisted file search
func (c *Client) SearchFiles(ctx context.Context, query string) (*Page[BankFile], error) {
	var page Page[BankFile]
	if err := c.do(ctx, http.MethodPost, "/files/bank-files/search/", nil, map[string]string{"query": query}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
