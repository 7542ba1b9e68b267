// Package allocator draws candidate uid/gid pairs from the configured
// ranges and screens them against the directory. The screening is
// advisory only: two concurrent allocations can pass it with the same
// number, and the directory's uniqueness constraint is what actually
// decides the race. Callers treat a later directory conflict as a
// signal to come back for a fresh pair.
package allocator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
	"github.com/leibniz-psychology/usermgrd/pkg/directory"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
	"github.com/leibniz-psychology/usermgrd/pkg/metrics"
)

// Pair is an allocated uid/gid candidate.
type Pair struct {
	UID int
	GID int
}

// Allocator hands out uid/gid pairs nobody in the directory holds yet.
type Allocator struct {
	cfg     config.AllocatorConfig
	dir     directory.Client
	metrics *metrics.LifecycleMetrics

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an allocator drawing from rng. Random choice keeps
// concurrent orchestrators from marching through the same sequence the
// way a lowest-free scan would. m may be nil.
func New(cfg config.AllocatorConfig, dir directory.Client, rng *rand.Rand, m *metrics.LifecycleMetrics) *Allocator {
	return &Allocator{cfg: cfg, dir: dir, rng: rng, metrics: m}
}

func (a *Allocator) randUID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.MinUID + a.rng.Intn(a.cfg.MaxUID-a.cfg.MinUID+1)
}

func (a *Allocator) randGID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.MinGID + a.rng.Intn(a.cfg.MaxGID-a.cfg.MinGID+1)
}

// AllocatePair draws a uid the directory does not know and pairs it
// with a gid. When the uid also lies in the gid range and is free as a
// gid, the pair is uid==gid, which keeps per-user groups aligned with
// their owners. Otherwise the gid is drawn independently. Exhausting
// MaxAttempts on either number reports ErrAllocationExhausted.
func (a *Allocator) AllocatePair(ctx context.Context) (Pair, error) {
	uid, err := a.allocate(ctx, "uid", a.randUID, a.dir.UIDInUse)
	if err != nil {
		return Pair{}, err
	}

	if uid >= a.cfg.MinGID && uid <= a.cfg.MaxGID {
		inUse, err := a.dir.GIDInUse(ctx, uid)
		if err != nil {
			return Pair{}, fmt.Errorf("check gid %d: %w", uid, err)
		}
		if !inUse {
			return Pair{UID: uid, GID: uid}, nil
		}
	}

	gid, err := a.allocate(ctx, "gid", a.randGID, a.dir.GIDInUse)
	if err != nil {
		return Pair{}, err
	}
	return Pair{UID: uid, GID: gid}, nil
}

func (a *Allocator) allocate(ctx context.Context, kind string, draw func() int, inUse func(context.Context, int) (bool, error)) (int, error) {
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		candidate := draw()
		used, err := inUse(ctx, candidate)
		if err != nil {
			return 0, fmt.Errorf("check %s %d: %w", kind, candidate, err)
		}
		if !used {
			if attempt > 1 {
				logger.Debug("allocated after collisions", "kind", kind, logger.KeyAttempt, attempt)
			}
			a.metrics.RecordAllocationAttempts(attempt)
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("%w: no free %s after %d attempts", identity.ErrAllocationExhausted, kind, a.cfg.MaxAttempts)
}
