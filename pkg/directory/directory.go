// Package directory manages the LDAP person and group entries backing a
// cluster user.
//
// Every user is represented by a dual-entry shape: a posixAccount
// person entry under the people base DN and a matching posixGroup entry
// under the group base DN whose name equals the username. This shape is
// the source of truth for uid/gid uniqueness: the allocator's free-id
// check is advisory, the directory's own "entry already exists" error
// on add is the real collision detection.
package directory

import (
	"context"

	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

// PosixUser is the directory's view of an existing account.
type PosixUser struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// Client is the narrow contract the orchestrator drives. Errors are
// always drawn from the identity taxonomy: ErrConflict when the target
// DN already exists, ErrNotFound when it is absent,
// ErrAuthenticationFailure when the service bind is rejected, and
// ErrDependencyUnavailable for anything transport-level.
type Client interface {
	// CreatePerson adds the posixAccount entry for the user.
	CreatePerson(ctx context.Context, user *identity.User) error

	// CreateGroup adds the matching posixGroup entry.
	CreateGroup(ctx context.Context, user *identity.User) error

	// DeletePerson removes the person entry.
	DeletePerson(ctx context.Context, username string) error

	// DeleteGroup removes the group entry.
	DeleteGroup(ctx context.Context, username string) error

	// UIDInUse reports whether any person entry carries this uidNumber.
	UIDInUse(ctx context.Context, uid int) (bool, error)

	// GIDInUse reports whether any group entry carries this gidNumber.
	GIDInUse(ctx context.Context, gid int) (bool, error)

	// LookupUser fetches the account for a username, ErrNotFound when
	// absent.
	LookupUser(ctx context.Context, username string) (*PosixUser, error)

	// Ping verifies the directory is reachable and the service bind
	// works. Used by the readiness probe.
	Ping(ctx context.Context) error
}
