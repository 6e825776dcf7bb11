// Package backend talks to the console backend's REST API: connection
// lookup, session create/close and the health endpoint used for diagnostics.
// Calls are assumed idempotent; retrying them is the caller's business.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// Client is an HTTP client for one backend.
type Client struct {
	Endpoint config.Endpoint
	Token    string
	HTTP     *http.Client
}

// NewClient builds a client with a 10s request timeout.
func NewClient(ep config.Endpoint, token string) *Client {
	return &Client{
		Endpoint: ep,
		Token:    token,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// FromConfig builds a client for config.Cfg's backend.
func FromConfig() *Client {
	return NewClient(config.Cfg.Backend(), config.Cfg.Token)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint.HTTPBase()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTP.Do(req)
}

// statusError reads a short error body for non-2xx responses.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: HTTP %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

// GetConnection fetches one connection descriptor.
func (c *Client) GetConnection(ctx context.Context, id string) (protocol.ConnectionDescriptor, error) {
	var d protocol.ConnectionDescriptor
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/connections/"+url.PathEscape(id), nil)
	if err != nil {
		return d, fmt.Errorf("get connection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return d, fmt.Errorf("get connection %s: %w", id, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return d, statusError("get connection", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return d, fmt.Errorf("decode connection: %w", err)
	}
	if err := d.Normalize(); err != nil {
		return d, err
	}
	return d, nil
}

// ListConnections fetches every connection visible to the token.
func (c *Client) ListConnections(ctx context.Context) ([]protocol.ConnectionDescriptor, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/connections", nil)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("list connections", resp)
	}
	var list []protocol.ConnectionDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	out := list[:0]
	for _, d := range list {
		if err := d.Normalize(); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type createSessionRequest struct {
	ConnectionID string `json:"connection_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession asks the backend for a new session id on a connection.
func (c *Client) CreateSession(ctx context.Context, connectionID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/sessions", createSessionRequest{ConnectionID: connectionID})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", statusError("create session", resp)
	}
	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("create session: empty session id")
	}
	return out.SessionID, nil
}

// CloseSession tears down a backend session. A missing session is not an error.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return statusError("close session", resp)
	}
	return nil
}
