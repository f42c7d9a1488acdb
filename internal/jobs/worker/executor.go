package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/jobs/runtime"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/services"
)

// Executor runs one claimed job through its registered handler. The polling
// pool, the Temporal activity and inline dispatch all share it.
type Executor struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	policy   runtime.RetryPolicy
}

func NewExecutor(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, policy runtime.RetryPolicy) *Executor {
	return &Executor{
		db:       db,
		log:      baseLog.With("component", "JobExecutor"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		policy:   policy.WithDefaults(),
	}
}

func (e *Executor) Policy() runtime.RetryPolicy { return e.policy }

// Run executes job, which must already be claimed (status running). A handler
// that returns nil without a terminal status is marked succeeded.
func (e *Executor) Run(ctx context.Context, job *types.JobRun) {
	jc := runtime.NewContext(ctx, e.db, job, e.repo, e.notify, e.policy)
	h, ok := e.registry.Get(job.JobType)
	if !ok {
		e.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", runtime.Permanent(&missingHandlerError{JobType: job.JobType}))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
			jc.Fail("panic", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.Run(jc); err != nil {
		if job.Status == types.StatusRunning {
			jc.Fail("run", err)
		}
		return
	}
	if job.Status == types.StatusRunning {
		jc.Succeed("done", nil)
	}
}

// RunByID claims a specific job and runs it. It returns the job row after
// the run, or nil when the job could not be claimed.
func (e *Executor) RunByID(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := e.repo.ClaimByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	if job == nil {
		return nil, nil
	}
	e.Run(ctx, job)
	rows, err := e.repo.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return job, err
	}
	return rows[0], nil
}

// RunUntilTerminal drives the job through its retries in-process until the
// row is succeeded, canceled or dead, waiting out available_at between
// attempts. Inline dispatch has no poller and relies on it.
func (e *Executor) RunUntilTerminal(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	for {
		job, err := e.RunByID(ctx, id)
		if err != nil || job == nil || job.IsTerminal() {
			return job, err
		}
		wait := e.policy.Base
		if job.AvailableAt != nil {
			wait = time.Until(*job.AvailableAt)
		}
		if wait <= 0 {
			continue
		}
		e.log.Debug("Job waiting to retry", "job_id", id, "attempts", job.Attempts, "wait", wait.String())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return job, ctx.Err()
		case <-timer.C:
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }
