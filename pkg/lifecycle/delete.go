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
	stepLookup          = "directory-lookup"
	stepPrincipalRemove = "kerberos-remove"
	stepHomePrepare     = "home-prepare-delete"
	stepDirectoryRemove = "directory-remove"
	stepHomeCommit      = "home-commit-delete"
)

// deleteState carries cross-step data for the delete saga.
type deleteState struct {
	username string
	token    string
	warnings []identity.Warning
	failure  error
}

func (st *deleteState) fail(stp automa.Step, err error) *automa.Report {
	st.failure = err
	return automa.FailureReport(stp, automa.WithError(err))
}

func (st *deleteState) warn(step, detail string) {
	st.warnings = append(st.warnings, identity.Warning{Step: step, Detail: detail})
}

// DeleteUser removes an account end to end: the Kerberos principal
// first so logins stop immediately, then the home deletion handshake,
// the directory entries, and finally the cache flush and the home
// removal itself. The home daemon's token snapshots the home path
// while the account still resolves; the actual removal happens only
// after the directory entries are gone.
//
// The saga runs forward-only. Steps tolerate already-missing backend
// state, so a delete that failed halfway can be retried until it
// reports success. Only an account unknown to the directory reports
// ErrNotFound. Home-daemon failures never block the teardown; they
// come back as warnings alongside the ok status.
func (o *Orchestrator) DeleteUser(ctx context.Context, username string) ([]identity.Warning, error) {
	if !identity.ValidUsername(username) {
		return nil, fmt.Errorf("%w: invalid username %q", identity.ErrNotFound, username)
	}

	// finish the teardown even when the caller goes away
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	warnings, err := o.runDeleteSaga(ctx, username)
	o.metrics.RecordSaga("delete", outcomeLabel(err), time.Since(start))
	return warnings, err
}

func (o *Orchestrator) runDeleteSaga(ctx context.Context, username string) ([]identity.Warning, error) {
	sagaID := uuid.NewString()
	st := &deleteState{username: username}

	log := logger.With(
		logger.KeySagaID, sagaID,
		logger.KeyOperation, "delete",
		logger.KeyUsername, username)
	log.Info("starting user deletion")

	b := automa.NewWorkflowBuilder().WithId("delete-user-" + sagaID).
		Steps(
			o.lookupStep(st),
			o.principalRemoveStep(st),
			o.homePrepareStep(st),
			o.directoryRemoveStep(st),
			o.cacheFlushStep(st.warn, "delete"),
			o.homeCommitStep(st),
		)

	wb, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build delete workflow: %w", err)
	}

	report := wb.Execute(ctx)
	if report.Error != nil {
		err := st.failure
		if err == nil {
			err = report.Error
		}
		log.Error("user deletion failed", logger.KeyError, err)
		return nil, err
	}

	log.Info("user deleted")
	return st.warnings, nil
}

// lookupStep resolves the account and refuses to touch anything
// outside the managed uid range.
func (o *Orchestrator) lookupStep(st *deleteState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepLookup).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("delete", stepLookup)()

			posix, err := o.dir.LookupUser(ctx, st.username)
			if err != nil {
				return st.fail(stp, err)
			}
			if err := o.authorizeUID(posix.UID); err != nil {
				return st.fail(stp, err)
			}
			return automa.SuccessReport(stp)
		})
}

// principalRemoveStep disables logins before anything else is touched.
// A principal that is already gone is fine.
func (o *Orchestrator) principalRemoveStep(st *deleteState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepPrincipalRemove).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("delete", stepPrincipalRemove)()

			err := o.kdc.Delete(ctx, st.username)
			if err != nil && !errors.Is(err, identity.ErrNotFound) {
				return st.fail(stp, err)
			}
			if errors.Is(err, identity.ErrNotFound) {
				return automa.SkippedReport(stp, automa.WithDetail("principal already absent"))
			}
			return automa.SuccessReport(stp)
		})
}

// homePrepareStep obtains the deletion token while the account still
// resolves through NSS on the daemon's host. A user the daemon cannot
// resolve has no home to delete; the commit step is skipped. A home
// daemon that is down must not block the rest of the teardown, so the
// failure becomes a warning and the home stays behind for a retry.
func (o *Orchestrator) homePrepareStep(st *deleteState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepHomePrepare).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("delete", stepHomePrepare)()

			token, err := o.home.PrepareDelete(ctx, st.username)
			if errors.Is(err, identity.ErrNotFound) {
				return automa.SkippedReport(stp, automa.WithDetail("no home to delete"))
			}
			if err != nil {
				logger.Warn("home delete preparation failed",
					logger.KeyUsername, st.username, logger.KeyError, err)
				st.warn(stepHomePrepare, err.Error())
				return automa.SuccessReport(stp)
			}
			st.token = token
			return automa.SuccessReport(stp)
		})
}

// directoryRemoveStep deletes the person and group entries. Missing
// entries are tolerated so retries converge.
func (o *Orchestrator) directoryRemoveStep(st *deleteState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepDirectoryRemove).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("delete", stepDirectoryRemove)()

			if err := o.dir.DeletePerson(ctx, st.username); err != nil && !errors.Is(err, identity.ErrNotFound) {
				return st.fail(stp, err)
			}
			if err := o.dir.DeleteGroup(ctx, st.username); err != nil && !errors.Is(err, identity.ErrNotFound) {
				return st.fail(stp, err)
			}
			return automa.SuccessReport(stp)
		})
}

// homeCommitStep redeems the deletion token once the account no longer
// resolves anywhere. The directory entries and the principal are gone
// by now, so a commit failure only leaves the home behind; surfacing
// it as a warning keeps the delete itself reported as done.
func (o *Orchestrator) homeCommitStep(st *deleteState) automa.Builder {
	return automa.NewStepBuilder().WithId(stepHomeCommit).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			defer o.observeStep("delete", stepHomeCommit)()

			if st.token == "" {
				return automa.SkippedReport(stp, automa.WithDetail("no deletion token"))
			}
			if err := o.home.CommitDelete(ctx, st.username, st.token); err != nil {
				logger.Warn("home removal failed",
					logger.KeyUsername, st.username, logger.KeyError, err)
				st.warn(stepHomeCommit, err.Error())
			}
			return automa.SuccessReport(stp)
		})
}
