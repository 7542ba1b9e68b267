package principal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// runner abstracts the kadmin subprocess so tests can substitute a
// fake. stdin carries the password answers for add_principal's two
// prompts; output is combined stdout+stderr.
type runner interface {
	Run(ctx context.Context, stdin string, args ...string) (output string, err error)
}

type execRunner struct {
	path string
}

func (r *execRunner) Run(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// KadminClient implements Client by driving the kadmin binary with the
// service keytab. python-kadmin style library bindings are unmaintained
// for the MIT admin protocol; the kadmin binary is the stable contract.
type KadminClient struct {
	cfg config.KerberosConfig
	run runner
}

// NewKadminClient creates a principal client and verifies the service
// keytab parses.
func NewKadminClient(cfg config.KerberosConfig) (*KadminClient, error) {
	data, err := os.ReadFile(cfg.Keytab)
	if err != nil {
		return nil, fmt.Errorf("read keytab %s: %w", cfg.Keytab, err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab %s: %w", cfg.Keytab, err)
	}

	return &KadminClient{
		cfg: cfg,
		run: &execRunner{path: cfg.KadminPath},
	}, nil
}

// commonArgs are the kadmin authentication flags shared by every
// invocation: keytab auth as the configured admin principal.
func (c *KadminClient) commonArgs() []string {
	return []string{"-k", "-t", c.cfg.Keytab, "-p", c.cfg.AdminPrincipal}
}

// principal qualifies the username with the configured realm so the
// admin server never falls back to its default realm.
func (c *KadminClient) principal(username string) string {
	if c.cfg.Realm == "" {
		return username
	}
	return username + "@" + c.cfg.Realm
}

func (c *KadminClient) kadmin(ctx context.Context, stdin string, query ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := append(c.commonArgs(), query...)
	logger.Debug("running kadmin", logger.KeyBackend, "kerberos", "query", query[0])

	out, err := c.run.Run(ctx, stdin, args...)
	if ctx.Err() != nil {
		return out, fmt.Errorf("%w: kadmin %s: %v", identity.ErrDependencyUnavailable, query[0], ctx.Err())
	}
	return out, err
}

// Create adds a principal with preauthentication required and service
// ticket issuance disabled, matching the cluster account policy. The
// password answers kadmin's two prompts over stdin so it never appears
// in the process list.
func (c *KadminClient) Create(ctx context.Context, username, password string) error {
	query := []string{"add_principal", "+requires_preauth", "-allow_svr"}
	if flag := expiryFlag(c.cfg.Expiry); flag != "" {
		query = append(query, "-expire", flag)
	}
	query = append(query, c.principal(username))

	stdin := password + "\n" + password + "\n"
	out, err := c.kadmin(ctx, stdin, query...)
	if err != nil {
		return mapKadminError("add_principal", out, err)
	}
	return nil
}

// Delete removes or soft-disables the principal per the configured
// delete policy.
func (c *KadminClient) Delete(ctx context.Context, username string) error {
	if c.cfg.DeletePolicy == config.DeletePolicyExpire {
		return c.Expire(ctx, username)
	}

	out, err := c.kadmin(ctx, "", "delete_principal", "-force", c.principal(username))
	if err != nil {
		return mapKadminError("delete_principal", out, err)
	}
	return nil
}

// Expire dates the principal's expiry into the past, disabling logins
// while keeping the entry for later reactivation or audit.
func (c *KadminClient) Expire(ctx context.Context, username string) error {
	out, err := c.kadmin(ctx, "", "modify_principal", "-expire", "yesterday", c.principal(username))
	if err != nil {
		return mapKadminError("modify_principal", out, err)
	}
	return nil
}

// Exists probes the principal with get_principal.
func (c *KadminClient) Exists(ctx context.Context, username string) (bool, error) {
	out, err := c.kadmin(ctx, "", "get_principal", c.principal(username))
	if err == nil {
		return true, nil
	}

	mapped := mapKadminError("get_principal", out, err)
	if errors.Is(mapped, identity.ErrNotFound) {
		return false, nil
	}
	return false, mapped
}

// expiryFlag converts the configured expiry policy into a kadmin
// -expire argument. An empty return means the flag is omitted and the
// principal is enabled immediately.
func expiryFlag(policy string) string {
	switch policy {
	case config.ExpiryNever, "":
		return ""
	case config.ExpiryYesterday:
		return "yesterday"
	default:
		if t, err := time.Parse(time.RFC3339, policy); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
		// Validate() rejected anything else at startup
		return policy
	}
}

// mapKadminError classifies a kadmin failure by its diagnostic output.
// kadmin exits non-zero for every failure class, so the message text is
// the only signal available.
func mapKadminError(op, out string, err error) error {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s: %s", identity.ErrConflict, op, firstLine(out))
	case strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "principal does not exist"):
		return fmt.Errorf("%w: %s: %s", identity.ErrNotFound, op, firstLine(out))
	case strings.Contains(lower, "client not found"),
		strings.Contains(lower, "preauthentication failed"),
		strings.Contains(lower, "incorrect password"),
		strings.Contains(lower, "operation requires"):
		return fmt.Errorf("%w: %s: %s", identity.ErrAuthenticationFailure, op, firstLine(out))
	default:
		return fmt.Errorf("%w: %s: %v: %s", identity.ErrDependencyUnavailable, op, err, firstLine(out))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ Client = (*KadminClient)(nil)
