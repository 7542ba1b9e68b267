// Package apiclient provides the usermgrd API client for usermgrctl.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// Client is the usermgrd API client. It talks to the daemon over its
// unix socket.
type Client struct {
	httpClient *http.Client
	principal  string
}

// New creates a new API client for the given socket path.
func New(socket string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

// WithPrincipal returns a client that asserts the given caller
// principal on every request. Useful when talking to the socket
// directly instead of through the fronting proxy.
func (c *Client) WithPrincipal(principal string) *Client {
	return &Client{httpClient: c.httpClient, principal: principal}
}

// CreateResult is the daemon's reply to a creation request.
type CreateResult struct {
	identity.User
	Warnings []identity.Warning `json:"warnings,omitempty"`
}

// CreateUser asks the daemon for a fresh account. The password in the
// result is shown exactly once and cannot be retrieved again.
func (c *Client) CreateUser(ctx context.Context) (*CreateResult, error) {
	var result CreateResult
	if err := c.do(ctx, http.MethodPost, "/", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteUser removes the account end to end. A successful delete may
// still carry warnings for the best-effort steps, the home removal in
// particular.
func (c *Client) DeleteUser(ctx context.Context, username string) ([]identity.Warning, error) {
	var result struct {
		Warnings []identity.Warning `json:"warnings"`
	}
	if err := c.do(ctx, http.MethodDelete, "/"+url.PathEscape(username), &result); err != nil {
		return nil, err
	}
	return result.Warnings, nil
}

// Health checks that the daemon answers on its socket.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

// do performs an HTTP request and decodes the response. The host in
// the URL is a placeholder; the transport always dials the socket.
func (c *Client) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.principal != "" {
		req.Header.Set("X-Forwarded-User", c.principal)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Status != "" {
			apiErr.StatusCode = resp.StatusCode
			return &apiErr
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
