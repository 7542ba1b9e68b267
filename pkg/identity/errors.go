package identity

import "errors"

// Common errors for user lifecycle operations. Backend clients map
// protocol-specific failures onto these before returning, so the
// orchestrator only ever dispatches on this set.
var (
	// ErrAllocationExhausted signals no free uid/gid could be found in
	// the configured range. Fatal, nothing to compensate.
	ErrAllocationExhausted = errors.New("no free id in configured range")

	// ErrConflict signals the target entry already exists. On create it
	// indicates a lost allocation race and the saga is retried with a
	// fresh identity; on delete it is tolerated.
	ErrConflict = errors.New("entry already exists")

	// ErrNotFound signals the target entry is absent. Tolerated on
	// delete (idempotent re-delete).
	ErrNotFound = errors.New("entry not found")

	// ErrAuthenticationFailure signals the backend rejected usermgrd's
	// own credentials. Configuration-level, never retried.
	ErrAuthenticationFailure = errors.New("backend rejected service credentials")

	// ErrDependencyUnavailable signals the backend is unreachable or
	// timed out after bounded retries.
	ErrDependencyUnavailable = errors.New("backend unavailable")
)
