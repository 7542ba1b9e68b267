package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// Home is the contract with the home-directory daemon. Creation is a
// single call; deletion is a two-step handshake: PrepareDelete hands
// out a short-lived token while the account still resolves through
// NSS, and CommitDelete redeems it after the directory entries are
// gone.
type Home interface {
	Create(ctx context.Context, username string) error
	PrepareDelete(ctx context.Context, username string) (token string, err error)
	CommitDelete(ctx context.Context, username, token string) error
}

// HomeClient talks to mkhomedird over its unix socket.
type HomeClient struct {
	*socketClient
}

// NewHomeClient creates a home-directory daemon client.
func NewHomeClient(cfg config.CollabConfig) *HomeClient {
	return &HomeClient{socketClient: newSocketClient("mkhomedird", cfg)}
}

// Create provisions the user's home from the skeleton. The account
// must already resolve through NSS on the daemon's host. An existing
// home reports ErrConflict.
func (c *HomeClient) Create(ctx context.Context, username string) error {
	sr, code, err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(username), nil)
	if err != nil {
		return err
	}

	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: mkhomedird: %s", identity.ErrNotFound, sr.Status)
	case http.StatusConflict:
		return fmt.Errorf("%w: mkhomedird: %s", identity.ErrConflict, sr.Status)
	default:
		return c.statusErr(code, sr)
	}
}

// PrepareDelete requests a deletion token. The daemon snapshots the
// account's home path now so the removal can proceed after the account
// vanishes from NSS. A user the daemon cannot resolve reports
// ErrNotFound.
func (c *HomeClient) PrepareDelete(ctx context.Context, username string) (string, error) {
	sr, code, err := c.do(ctx, http.MethodDelete, "/"+url.PathEscape(username), nil)
	if err != nil {
		return "", err
	}

	if code == http.StatusNotFound {
		return "", fmt.Errorf("%w: mkhomedird: %s", identity.ErrNotFound, sr.Status)
	}
	if code != http.StatusOK || sr.Status != "again" || sr.Token == "" {
		return "", c.statusErr(code, sr)
	}
	return sr.Token, nil
}

// CommitDelete redeems a deletion token after the account is gone from
// the directory. The daemon rejects expired tokens and users that
// still resolve.
func (c *HomeClient) CommitDelete(ctx context.Context, username, token string) error {
	path := "/" + url.PathEscape(username) + "?token=" + url.QueryEscape(token)
	sr, code, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	if code != http.StatusOK {
		return c.statusErr(code, sr)
	}
	return nil
}

var _ Home = (*HomeClient)(nil)
