// Package lifecycle orchestrates user creation and deletion across the
// directory, the KDC and the node-local collaborator daemons. Creation
// runs as a compensating saga: every step that changes backend state
// carries a rollback, and a mid-saga failure unwinds the completed
// steps in reverse so no half-created account survives. Deletion runs
// forward-only and tolerates already-missing state, so a failed delete
// can simply be retried.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/leibniz-psychology/usermgrd/pkg/allocator"
	"github.com/leibniz-psychology/usermgrd/pkg/collab"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/directory"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
	"github.com/leibniz-psychology/usermgrd/pkg/metrics"
	"github.com/leibniz-psychology/usermgrd/pkg/principal"
)

// Orchestrator drives the lifecycle sagas against the configured
// backends.
type Orchestrator struct {
	cfg       config.AllocatorConfig
	dir       directory.Client
	kdc       principal.Client
	home      collab.Home
	cache     collab.Cache
	allocator *allocator.Allocator
	metrics   *metrics.LifecycleMetrics
}

// New creates an orchestrator. m may be nil.
func New(
	cfg config.AllocatorConfig,
	dir directory.Client,
	kdc principal.Client,
	home collab.Home,
	cache collab.Cache,
	alloc *allocator.Allocator,
	m *metrics.LifecycleMetrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		dir:       dir,
		kdc:       kdc,
		home:      home,
		cache:     cache,
		allocator: alloc,
		metrics:   m,
	}
}

// Result is the outcome of a successful creation.
type Result struct {
	User     *identity.User
	Warnings []identity.Warning
}

// authorizeUID rejects operations on accounts outside the managed uid
// range, which keeps system and personal accounts out of reach.
func (o *Orchestrator) authorizeUID(uid int) error {
	if uid < o.cfg.MinUID || uid > o.cfg.MaxUID {
		return fmt.Errorf("%w: uid %d outside managed range [%d,%d]",
			ErrUnauthorized, uid, o.cfg.MinUID, o.cfg.MaxUID)
	}
	return nil
}

// ErrUnauthorized marks an operation on an account the orchestrator
// does not manage.
var ErrUnauthorized = errors.New("account not managed by this service")

// isConflict reports whether err is a lost allocation race worth a
// fresh attempt.
func isConflict(err error) bool {
	return errors.Is(err, identity.ErrConflict)
}

// outcomeLabel maps a saga error to the metrics outcome label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isConflict(err):
		return "conflict"
	default:
		return "failed"
	}
}
