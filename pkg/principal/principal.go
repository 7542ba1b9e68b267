// Package principal manages the Kerberos principal backing a cluster
// user, through the kadmin administrative interface.
//
// usermgrd authenticates to kadmind with its own service keytab; this
// is unrelated to whatever authentication the inbound caller used. The
// keytab is parsed at startup so a misconfigured path or a corrupt
// file fails the daemon immediately instead of the first saga.
package principal

import "context"

// Client is the contract the orchestrator drives. Errors are drawn
// from the identity taxonomy.
type Client interface {
	// Create adds a principal with the given initial password. The
	// principal's expiry follows the configured policy: enabled
	// immediately, pre-expired pending a separate activation step, or
	// a fixed date.
	Create(ctx context.Context, username, password string) error

	// Delete removes the principal, or soft-disables it by dating its
	// expiry into the past when the delete policy says expire.
	// Returns ErrNotFound if the principal does not exist.
	Delete(ctx context.Context, username string) error

	// Expire sets the principal's expiry to a past timestamp,
	// disabling authentication without removing the entry.
	Expire(ctx context.Context, username string) error

	// Exists reports whether the principal is present.
	Exists(ctx context.Context, username string) (bool, error)
}
