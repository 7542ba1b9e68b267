// Package collab talks to the collaborating node-local daemons over
// their unix sockets: the home-directory daemon and the NSS cache
// flush daemon. Both speak JSON over HTTP with a status field in every
// body.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// statusResponse is the common body shape of every collaborator reply.
type statusResponse struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

// StatusError carries a collaborator's non-ok status for diagnostics.
type StatusError struct {
	Daemon     string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d (%s)", e.Daemon, e.StatusCode, e.Status)
}

// socketClient is the shared HTTP-over-unix-socket plumbing.
type socketClient struct {
	daemon     string
	httpClient *http.Client
}

func newSocketClient(daemon string, cfg config.CollabConfig) *socketClient {
	socket := cfg.Socket
	return &socketClient{
		daemon: daemon,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

// do performs a request and decodes the status body. The host in the
// URL is a placeholder; the transport always dials the unix socket.
func (c *socketClient) do(ctx context.Context, method, path string, body any) (*statusResponse, int, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", identity.ErrDependencyUnavailable, c.daemon, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: read response: %v", identity.ErrDependencyUnavailable, c.daemon, err)
	}

	var sr statusResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sr); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: %s: decode response: %v", identity.ErrDependencyUnavailable, c.daemon, err)
		}
	}

	return &sr, resp.StatusCode, nil
}

// statusErr builds the error for an unexpected collaborator reply.
func (c *socketClient) statusErr(code int, sr *statusResponse) error {
	return &StatusError{Daemon: c.daemon, StatusCode: code, Status: sr.Status}
}
