package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

type fakeConn struct {
	bindErr   error
	addErr    error
	delErr    error
	searchRes *ldap.SearchResult
	searchErr error

	binds    []string
	adds     []*ldap.AddRequest
	dels     []*ldap.DelRequest
	searches []*ldap.SearchRequest
	closed   bool
}

func (f *fakeConn) Bind(username, password string) error {
	f.binds = append(f.binds, username)
	return f.bindErr
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	f.adds = append(f.adds, req)
	return f.addErr
}

func (f *fakeConn) Del(req *ldap.DelRequest) error {
	f.dels = append(f.dels, req)
	return f.delErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes != nil {
		return f.searchRes, nil
	}
	return &ldap.SearchResult{}, nil
}

func (f *fakeConn) SetTimeout(time.Duration) {}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func testConfig() config.DirectoryConfig {
	return config.DirectoryConfig{
		URL:          "ldap://localhost",
		BindDN:       "cn=usermgrd,ou=services,dc=example,dc=com",
		BindPassword: "hunter2",
		PeopleBase:   "ou=people,dc=example,dc=com",
		GroupBase:    "ou=group,dc=example,dc=com",
		HomeTemplate: "/home/{user}",
		LoginShell:   "/bin/bash",
		Timeout:      time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func newTestClient(conn *fakeConn) *LDAPClient {
	c := NewLDAPClient(testConfig())
	c.dial = func(context.Context) (ldapConn, error) { return conn, nil }
	return c
}

func attrValues(t *testing.T, req *ldap.AddRequest, name string) []string {
	t.Helper()
	for _, attr := range req.Attributes {
		if attr.Type == name {
			return attr.Vals
		}
	}
	t.Fatalf("attribute %q missing on %s", name, req.DN)
	return nil
}

func TestCreatePersonEntryShape(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)
	c.cfg.ExtraObjectClasses = []string{"ldapPublicKey"}

	user := &identity.User{Username: "pabc123", UID: 3935374, GID: 3935374}
	require.NoError(t, c.CreatePerson(context.Background(), user))

	require.Len(t, conn.adds, 1)
	req := conn.adds[0]
	assert.Equal(t, "uid=pabc123,ou=people,dc=example,dc=com", req.DN)
	assert.Equal(t, []string{"cn=usermgrd,ou=services,dc=example,dc=com"}, conn.binds)
	assert.True(t, conn.closed)

	classes := attrValues(t, req, "objectClass")
	assert.Contains(t, classes, "posixAccount")
	assert.Contains(t, classes, "shadowAccount")
	assert.Contains(t, classes, "ldapPublicKey")

	assert.Equal(t, []string{"3935374"}, attrValues(t, req, "uidNumber"))
	assert.Equal(t, []string{"3935374"}, attrValues(t, req, "gidNumber"))
	assert.Equal(t, []string{"/home/pabc123"}, attrValues(t, req, "homeDirectory"))
	assert.Equal(t, []string{"/bin/bash"}, attrValues(t, req, "loginShell"))
	assert.Equal(t, []string{"pabc123"}, attrValues(t, req, "uid"))
}

func TestCreateGroupEntryShape(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	user := &identity.User{Username: "pabc123", UID: 11, GID: 22}
	require.NoError(t, c.CreateGroup(context.Background(), user))

	require.Len(t, conn.adds, 1)
	req := conn.adds[0]
	assert.Equal(t, "cn=pabc123,ou=group,dc=example,dc=com", req.DN)
	assert.Equal(t, []string{"top", "posixGroup"}, attrValues(t, req, "objectClass"))
	assert.Equal(t, []string{"22"}, attrValues(t, req, "gidNumber"))
	assert.Equal(t, []string{"pabc123"}, attrValues(t, req, "memberUid"))
}

func TestCreatePersonConflict(t *testing.T) {
	conn := &fakeConn{addErr: ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("entry exists"))}
	c := newTestClient(conn)

	err := c.CreatePerson(context.Background(), &identity.User{Username: "pabc", UID: 1, GID: 1})
	assert.ErrorIs(t, err, identity.ErrConflict)
	// definitive answer, no retries
	assert.Len(t, conn.adds, 1)
}

func TestDeletePersonNotFound(t *testing.T) {
	conn := &fakeConn{delErr: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))}
	c := newTestClient(conn)

	err := c.DeletePerson(context.Background(), "pabc")
	assert.ErrorIs(t, err, identity.ErrNotFound)
	require.Len(t, conn.dels, 1)
	assert.Equal(t, "uid=pabc,ou=people,dc=example,dc=com", conn.dels[0].DN)
}

func TestBindRejectedIsAuthenticationFailure(t *testing.T) {
	conn := &fakeConn{bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))}
	c := newTestClient(conn)

	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, identity.ErrAuthenticationFailure)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	conn := &fakeConn{addErr: ldap.NewError(ldap.LDAPResultUnavailable, errors.New("server going down"))}
	c := newTestClient(conn)

	err := c.CreateGroup(context.Background(), &identity.User{Username: "pabc", UID: 1, GID: 1})
	assert.ErrorIs(t, err, identity.ErrDependencyUnavailable)
	// initial attempt plus MaxRetries
	assert.Len(t, conn.adds, 3)
}

func TestDialFailureIsDependencyUnavailable(t *testing.T) {
	c := NewLDAPClient(testConfig())
	c.dial = func(context.Context) (ldapConn, error) { return nil, errors.New("connection refused") }

	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, identity.ErrDependencyUnavailable)
}

func TestUIDInUse(t *testing.T) {
	conn := &fakeConn{searchRes: &ldap.SearchResult{Entries: []*ldap.Entry{
		ldap.NewEntry("uid=pexisting,ou=people,dc=example,dc=com", map[string][]string{}),
	}}}
	c := newTestClient(conn)

	inUse, err := c.UIDInUse(context.Background(), 4711)
	require.NoError(t, err)
	assert.True(t, inUse)
	require.Len(t, conn.searches, 1)
	assert.Equal(t, "(&(objectClass=posixAccount)(uidNumber=4711))", conn.searches[0].Filter)
}

func TestUIDInUseSizeLimitMeansInUse(t *testing.T) {
	conn := &fakeConn{searchErr: ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit"))}
	c := newTestClient(conn)

	inUse, err := c.UIDInUse(context.Background(), 4711)
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestLookupUser(t *testing.T) {
	conn := &fakeConn{searchRes: &ldap.SearchResult{Entries: []*ldap.Entry{
		ldap.NewEntry("uid=pabc,ou=people,dc=example,dc=com", map[string][]string{
			"uid":           {"pabc"},
			"uidNumber":     {"4711"},
			"gidNumber":     {"4712"},
			"homeDirectory": {"/home/pabc"},
		}),
	}}}
	c := newTestClient(conn)

	user, err := c.LookupUser(context.Background(), "pabc")
	require.NoError(t, err)
	assert.Equal(t, &PosixUser{Username: "pabc", UID: 4711, GID: 4712, HomeDir: "/home/pabc"}, user)
}

func TestLookupUserNotFound(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	_, err := c.LookupUser(context.Background(), "pmissing")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestLookupUserEscapesFilter(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	_, _ = c.LookupUser(context.Background(), "p)(uid=*")
	require.Len(t, conn.searches, 1)
	assert.NotContains(t, conn.searches[0].Filter, "(uid=p)(")
}
