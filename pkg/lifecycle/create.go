package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/automa-saga/automa"
	"github.com/google/uuid"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/identity"
)

const (
	stepAllocate        = "allocate-identity"
	stepDirectoryPerson = "directory-person"
	stepDirectoryGroup  = "directory-group"
	stepPrincipal       = "kerberos-principal"
	stepHomeCreate      = "home-directory"
	stepCacheFlush      = "flush-nss-cache"
)

// createState is shared by the saga's steps through closures. automa's
// per-step state bags do not cross step boundaries, so cross-step data
// lives here.
type createState struct {
	user     *identity.User
	warnings []identity.Warning
	failure  error
}

// fail records the step error so the caller can classify it after the
// workflow returns; automa's report wraps errors in its own types.
func (st *createState) fail(stp automa.Step, err error) *automa.Report {
	st.failure = err
	return automa.FailureReport(stp, automa.WithError(err))
}

func (st *createState) warn(step, detail string) {
	st.warnings = append(st.warnings, identity.Warning{Step: step, Detail: detail})
}

// CreateUser provisions a new project account: allocates a free
// username and uid/gid pair, creates the directory person and group
// entries, registers the Kerberos principal, and asks the node-local
// daemons to build the home and drop stale NSS caches. A failure in
// the directory or the KDC unwinds everything created so far; losing
// the uid race to a concurrent creation restarts the whole saga with a
// fresh identity, a bounded number of times.
func (o *Orchestrator) CreateUser(ctx context.Context) (*Result, error) {
	// compensation must finish even when the caller goes away
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxSagaRetries; attempt++ {
		if attempt > 0 {
			o.metrics.RecordRetry()
			logger.Info("retrying creation after allocation race",
				logger.KeyAttempt, attempt)
		}

		res, err := o.runCreateSaga(ctx)
		if err == nil {
			o.metrics.RecordSaga("create", "ok", time.Since(start))
			return res, nil
		}

		lastErr = err
		if !isConflict(err) {
			break
		}
	}

	o.metrics.RecordSaga("create", outcomeLabel(lastErr), time.Since(start))
	if isConflict(lastErr) {
		return nil, fmt.Errorf("%w: lost allocation race %d times",
			identity.ErrAllocationExhausted, o.cfg.MaxSagaRetries+1)
	}
	return nil, lastErr
}

func (o *Orchestrator) runCreateSaga(ctx context.Context) (*Result, error) {
	sagaID := uuid.NewString()
	st := &createState{}

	log := logger.With(logger.KeySagaID, sagaID, logger.KeyOperation, "create")
	log.Info("starting user creation")

	b := automa.NewWorkflowBuilder().WithId("create-user-" + sagaID).
		WithExecutionMode(automa.RollbackOnError).
		Steps(
			o.allocateStep(st),
			o.directoryPersonStep(st),
			o.directoryGroupStep(st),
			o.principalStep(st),
			o.homeCreateStep(st),
			o.cacheFlushStep(st.warn, "create"),
		)

	wb, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build create workflow: %w", err)
	}

	report := wb.Execute(ctx)

	if report.Error != nil {
		err := st.failure
		if err == nil {
			err = report.Error
		}
		log.Error("user creation failed", logger.KeyError, err)
		return nil, err
	}

	log.Info("user created",
		logger.KeyUsername, st.user.Username,
		logger.KeyUID, st.user.UID,
		logger.KeyGID, st.user.GID)

	st.user.Status = identity.StatusOK
	return &Result{User: st.user, Warnings: st.warnings}, nil
}

// allocateStep draws the fresh identity. Nothing to roll back: no
// backend state changes until the directory steps.
func (o *Orchestrator) allocateStep(st *createState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepAllocate).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("create", stepAllocate)()

			pair, err := o.allocator.AllocatePair(ctx)
			if err != nil {
				return st.fail(stp, err)
			}

			username, err := identity.NewUsername()
			if err != nil {
				return st.fail(stp, err)
			}
			password, err := identity.NewPassword()
			if err != nil {
				return st.fail(stp, err)
			}

			st.user = &identity.User{
				Username: username,
				Password: password,
				UID:      pair.UID,
				GID:      pair.GID,
			}

			logger.Debug("allocated identity",
				logger.KeyUsername, st.user.Username,
				logger.KeyUID, st.user.UID,
				logger.KeyGID, st.user.GID)
			return automa.SuccessReport(stp)
		})
}

func (o *Orchestrator) directoryPersonStep(st *createState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepDirectoryPerson).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("create", stepDirectoryPerson)()

			if err := o.dir.CreatePerson(ctx, st.user); err != nil {
				return st.fail(stp, err)
			}
			stp.State().Local().Set("created", true)
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if created, _ := stp.State().Local().Bool("created"); !created {
				return automa.SkippedReport(stp, automa.WithDetail("person entry was not created"))
			}
			if err := o.dir.DeletePerson(ctx, st.user.Username); err != nil && !errors.Is(err, identity.ErrNotFound) {
				logger.Error("compensation failed, person entry may be orphaned",
					logger.KeyUsername, st.user.Username, logger.KeyError, err)
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		})
}

func (o *Orchestrator) directoryGroupStep(st *createState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepDirectoryGroup).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("create", stepDirectoryGroup)()

			if err := o.dir.CreateGroup(ctx, st.user); err != nil {
				return st.fail(stp, err)
			}
			stp.State().Local().Set("created", true)
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if created, _ := stp.State().Local().Bool("created"); !created {
				return automa.SkippedReport(stp, automa.WithDetail("group entry was not created"))
			}
			if err := o.dir.DeleteGroup(ctx, st.user.Username); err != nil && !errors.Is(err, identity.ErrNotFound) {
				logger.Error("compensation failed, group entry may be orphaned",
					logger.KeyUsername, st.user.Username, logger.KeyError, err)
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		})
}

func (o *Orchestrator) principalStep(st *createState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepPrincipal).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("create", stepPrincipal)()

			if err := o.kdc.Create(ctx, st.user.Username, st.user.Password); err != nil {
				return st.fail(stp, err)
			}
			stp.State().Local().Set("created", true)
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if created, _ := stp.State().Local().Bool("created"); !created {
				return automa.SkippedReport(stp, automa.WithDetail("principal was not created"))
			}
			if err := o.kdc.Delete(ctx, st.user.Username); err != nil && !errors.Is(err, identity.ErrNotFound) {
				logger.Error("compensation failed, principal may be orphaned",
					logger.KeyUsername, st.user.Username, logger.KeyError, err)
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		})
}

// homeCreateStep is best-effort: the account is complete without its
// home, and the daemon creates missing homes on demand. A failure here
// must never unwind the directory or the KDC, so the step reports
// success and surfaces the problem as a warning.
func (o *Orchestrator) homeCreateStep(st *createState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepHomeCreate).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("create", stepHomeCreate)()

			if err := o.home.Create(ctx, st.user.Username); err != nil {
				logger.Warn("home directory creation failed",
					logger.KeyUsername, st.user.Username, logger.KeyError, err)
				st.warn(stepHomeCreate, err.Error())
			}
			return automa.SuccessReport(stp)
		})
}

// cacheFlushStep is best-effort for the same reason: stale caches age
// out on their own. Shared by both sagas; warn collects the step's
// warning in whichever state struct is in play.
func (o *Orchestrator) cacheFlushStep(warn func(step, detail string), operation string) automa.Builder {
	return automa.NewStepBuilder().WithId(stepCacheFlush).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep(operation, stepCacheFlush)()

			if err := o.cache.FlushAccounts(ctx); err != nil {
				logger.Warn("cache flush failed",
					logger.KeyOperation, operation, logger.KeyError, err)
				warn(stepCacheFlush, err.Error())
			}
			return automa.SuccessReport(stp)
		})
}

// observeStep returns a deferred closure timing one step execution.
func (o *Orchestrator) observeStep(operation, step string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		o.metrics.RecordStep(operation, step, elapsed)
		logger.Debug("saga step finished",
			logger.KeyOperation, operation,
			logger.KeyStep, step,
			logger.KeyDuration, elapsed)
	}
}
