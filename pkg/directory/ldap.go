package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// personObjectClasses are the base object classes of every person
// entry; configured extra classes are appended.
var personObjectClasses = []string{
	"top",
	"person",
	"organizationalPerson",
	"inetOrgPerson",
	"posixAccount",
	"shadowAccount",
}

var groupObjectClasses = []string{"top", "posixGroup"}

// ldapConn is the slice of *ldap.Conn the client uses, extracted so
// tests can substitute a fake connection.
type ldapConn interface {
	Bind(username, password string) error
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SetTimeout(timeout time.Duration)
	Close() error
}

// LDAPClient implements Client against a real directory server. Each
// operation uses a fresh connection and service bind; the directory is
// close by (same rack) and connection setup is cheap compared to the
// saga's other steps.
type LDAPClient struct {
	cfg config.DirectoryConfig

	// dial is replaced in tests
	dial func(ctx context.Context) (ldapConn, error)
}

// NewLDAPClient creates a directory client from configuration.
func NewLDAPClient(cfg config.DirectoryConfig) *LDAPClient {
	c := &LDAPClient{cfg: cfg}
	c.dial = c.dialLDAP
	return c
}

func (c *LDAPClient) dialLDAP(ctx context.Context) (ldapConn, error) {
	conn, err := ldap.DialURL(c.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: c.cfg.Timeout}))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(c.cfg.Timeout)
	return conn, nil
}

// personDN builds the distinguished name of a user's person entry.
func (c *LDAPClient) personDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", username, c.cfg.PeopleBase)
}

// groupDN builds the distinguished name of a user's group entry.
func (c *LDAPClient) groupDN(username string) string {
	return fmt.Sprintf("cn=%s,%s", username, c.cfg.GroupBase)
}

// homeDirectory expands the configured template for a username.
func (c *LDAPClient) homeDirectory(username string) string {
	return strings.ReplaceAll(c.cfg.HomeTemplate, "{user}", username)
}

// withConn runs fn over a fresh bound connection, retrying transient
// failures up to the configured bound. Conflict, not-found, and
// credential errors are never retried; they are definitive answers
// from the directory, not outages.
func (c *LDAPClient) withConn(ctx context.Context, fn func(conn ldapConn) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying directory operation",
				logger.KeyBackend, "directory",
				logger.KeyAttempt, attempt,
			)
			select {
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", identity.ErrDependencyUnavailable, ctx.Err())
			}
		}

		err := c.connect(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, identity.ErrDependencyUnavailable) {
			return err
		}
		lastErr = err
	}

	return lastErr
}

func (c *LDAPClient) connect(ctx context.Context, fn func(conn ldapConn) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", identity.ErrDependencyUnavailable, c.cfg.URL, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < c.cfg.Timeout {
			conn.SetTimeout(remaining)
		}
	}

	if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
		return mapLDAPError("bind", err)
	}

	return fn(conn)
}

// CreatePerson adds the posixAccount entry for the user.
func (c *LDAPClient) CreatePerson(ctx context.Context, user *identity.User) error {
	return c.withConn(ctx, func(conn ldapConn) error {
		req := ldap.NewAddRequest(c.personDN(user.Username), nil)
		req.Attribute("objectClass", append(append([]string{}, personObjectClasses...), c.cfg.ExtraObjectClasses...))
		req.Attribute("sn", []string{fmt.Sprintf("Project account %s", user.Username)})
		req.Attribute("cn", []string{user.Username})
		req.Attribute("uid", []string{user.Username})
		req.Attribute("uidNumber", []string{strconv.Itoa(user.UID)})
		req.Attribute("gidNumber", []string{strconv.Itoa(user.GID)})
		req.Attribute("homeDirectory", []string{c.homeDirectory(user.Username)})
		req.Attribute("loginShell", []string{c.cfg.LoginShell})

		if err := conn.Add(req); err != nil {
			return mapLDAPError("add person", err)
		}
		return nil
	})
}

// CreateGroup adds the matching posixGroup entry.
func (c *LDAPClient) CreateGroup(ctx context.Context, user *identity.User) error {
	return c.withConn(ctx, func(conn ldapConn) error {
		req := ldap.NewAddRequest(c.groupDN(user.Username), nil)
		req.Attribute("objectClass", groupObjectClasses)
		req.Attribute("cn", []string{user.Username})
		req.Attribute("gidNumber", []string{strconv.Itoa(user.GID)})
		req.Attribute("memberUid", []string{user.Username})

		if err := conn.Add(req); err != nil {
			return mapLDAPError("add group", err)
		}
		return nil
	})
}

// DeletePerson removes the person entry.
func (c *LDAPClient) DeletePerson(ctx context.Context, username string) error {
	return c.withConn(ctx, func(conn ldapConn) error {
		if err := conn.Del(ldap.NewDelRequest(c.personDN(username), nil)); err != nil {
			return mapLDAPError("delete person", err)
		}
		return nil
	})
}

// DeleteGroup removes the group entry.
func (c *LDAPClient) DeleteGroup(ctx context.Context, username string) error {
	return c.withConn(ctx, func(conn ldapConn) error {
		if err := conn.Del(ldap.NewDelRequest(c.groupDN(username), nil)); err != nil {
			return mapLDAPError("delete group", err)
		}
		return nil
	})
}

// UIDInUse reports whether any person entry carries this uidNumber.
func (c *LDAPClient) UIDInUse(ctx context.Context, uid int) (bool, error) {
	filter := fmt.Sprintf("(&(objectClass=posixAccount)(uidNumber=%d))", uid)
	return c.exists(ctx, c.cfg.PeopleBase, filter)
}

// GIDInUse reports whether any group entry carries this gidNumber.
func (c *LDAPClient) GIDInUse(ctx context.Context, gid int) (bool, error) {
	filter := fmt.Sprintf("(&(objectClass=posixGroup)(gidNumber=%d))", gid)
	return c.exists(ctx, c.cfg.GroupBase, filter)
}

func (c *LDAPClient) exists(ctx context.Context, base, filter string) (bool, error) {
	var found bool

	err := c.withConn(ctx, func(conn ldapConn) error {
		req := ldap.NewSearchRequest(
			base,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			1, 0, false,
			filter,
			[]string{"dn"},
			nil,
		)

		res, err := conn.Search(req)
		if err != nil {
			// size limit exceeded still means at least one entry exists
			if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
				found = true
				return nil
			}
			return mapLDAPError("search", err)
		}
		found = len(res.Entries) > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// LookupUser fetches the account entry for a username.
func (c *LDAPClient) LookupUser(ctx context.Context, username string) (*PosixUser, error) {
	var user *PosixUser

	err := c.withConn(ctx, func(conn ldapConn) error {
		req := ldap.NewSearchRequest(
			c.cfg.PeopleBase,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			1, 0, false,
			fmt.Sprintf("(&(objectClass=posixAccount)(uid=%s))", ldap.EscapeFilter(username)),
			[]string{"uid", "uidNumber", "gidNumber", "homeDirectory"},
			nil,
		)

		res, err := conn.Search(req)
		if err != nil {
			return mapLDAPError("search", err)
		}
		if len(res.Entries) == 0 {
			return fmt.Errorf("%w: user %s", identity.ErrNotFound, username)
		}

		entry := res.Entries[0]
		uid, err := strconv.Atoi(entry.GetAttributeValue("uidNumber"))
		if err != nil {
			return fmt.Errorf("%w: malformed uidNumber on %s: %v", identity.ErrDependencyUnavailable, entry.DN, err)
		}
		gid, err := strconv.Atoi(entry.GetAttributeValue("gidNumber"))
		if err != nil {
			return fmt.Errorf("%w: malformed gidNumber on %s: %v", identity.ErrDependencyUnavailable, entry.DN, err)
		}

		user = &PosixUser{
			Username: entry.GetAttributeValue("uid"),
			UID:      uid,
			GID:      gid,
			HomeDir:  entry.GetAttributeValue("homeDirectory"),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Ping verifies reachability and the service bind.
func (c *LDAPClient) Ping(ctx context.Context) error {
	return c.connect(ctx, func(ldapConn) error { return nil })
}

// mapLDAPError folds a go-ldap error into the identity taxonomy.
func mapLDAPError(op string, err error) error {
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists):
		return fmt.Errorf("%w: %s: %v", identity.ErrConflict, op, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return fmt.Errorf("%w: %s: %v", identity.ErrNotFound, op, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials),
		ldap.IsErrorWithCode(err, ldap.LDAPResultInsufficientAccessRights):
		return fmt.Errorf("%w: %s: %v", identity.ErrAuthenticationFailure, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", identity.ErrDependencyUnavailable, op, err)
	}
}

var _ Client = (*LDAPClient)(nil)
