// Package agent is the HTTP client for the external generation service.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Config wires the client. The HTTP client is constructor-injected so relay
// lifetimes can be tested against a fake upstream; when nil a dedicated
// client is built rather than sharing http.DefaultClient.
type Config struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// Client calls the generation agent. Request deadlines are supplied by the
// caller's context: generation runs for minutes, refinement much shorter, so
// no single client-level timeout fits both.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// GenerateRequest is the agent's generate payload.
type GenerateRequest struct {
	RepoURL   string `json:"repo_url"`
	DocType   string `json:"doc_type,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// RefineRequest is the agent's refine payload. CurrentDocs is the full
// generated object being revised.
type RefineRequest struct {
	Prompt      string          `json:"prompt"`
	CurrentDocs json.RawMessage `json:"current_docs"`
	RepoName    string          `json:"repo_name"`
}

// New constructs a Client.
func New(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   httpClient,
		logger: logger,
	}
}

// Generate opens the generation call, asking for the event-stream variant.
// The caller owns the response body and must close it; use IsEventStream to
// decide between the relay path and the JSON fallback.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*http.Response, error) {
	if req.RepoURL == "" {
		return nil, fmt.Errorf("repo url is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation agent: %w", err)
	}
	return resp, nil
}

// Refine runs the non-streaming refinement call and returns the raw response
// object (expected shape {"docs": ...}).
func (c *Client) Refine(ctx context.Context, req RefineRequest) (json.RawMessage, error) {
	if len(req.CurrentDocs) == 0 {
		return nil, fmt.Errorf("current docs are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal refine request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/refine", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build refine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation agent: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close refine response body", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read refine response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refine failed with status %d", resp.StatusCode)
	}
	return json.RawMessage(raw), nil
}

// IsEventStream reports whether the response carries the streaming variant.
func IsEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}
