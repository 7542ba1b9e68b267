package collab

import (
	"context"
	"net/http"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
)

// Cache is the contract with the NSS cache flush daemon.
type Cache interface {
	FlushAccounts(ctx context.Context) error
}

// CacheClient talks to nscdflushd over its unix socket.
type CacheClient struct {
	*socketClient
}

// NewCacheClient creates a cache flush daemon client.
func NewCacheClient(cfg config.CollabConfig) *CacheClient {
	return &CacheClient{socketClient: newSocketClient("nscdflushd", cfg)}
}

// FlushAccounts drops the host's cached passwd and group entries so
// fresh directory state becomes visible immediately.
func (c *CacheClient) FlushAccounts(ctx context.Context) error {
	sr, code, err := c.do(ctx, http.MethodDelete, "/account", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return c.statusErr(code, sr)
	}
	return nil
}

var _ Cache = (*CacheClient)(nil)
