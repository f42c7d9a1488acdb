package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// JobRunner claims and executes one job. worker.Executor implements it.
type JobRunner interface {
	RunByID(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
}

type Activities struct {
	Log       *logger.Logger
	Jobs      jobrepo.JobRunRepo
	Runner    JobRunner
	Heartbeat time.Duration
}

// Tick runs the job once when it is runnable and reports its state. It never
// returns an error for job-level failures; those live on the row.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}

	job, err := a.load(ctx, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	if runnable(job, time.Now()) {
		stop := a.startHeartbeat(ctx)
		ran, err := a.Runner.RunByID(ctx, id)
		stop()
		if err != nil {
			return res, err
		}
		if ran != nil {
			job = ran
		} else if job, err = a.load(ctx, id); err != nil || job == nil {
			return res, fmt.Errorf("jobrun: reload job %s: %v", id, err)
		}
	}

	res.Status = job.Status
	res.Stage = job.Stage
	res.Attempts = job.Attempts
	res.Error = job.Error
	if job.Status == types.StatusFailed {
		res.RetryAt = job.AvailableAt
	}
	return res, nil
}

func runnable(job *types.JobRun, now time.Time) bool {
	switch job.Status {
	case types.StatusQueued, types.StatusFailed:
		return job.AvailableAt == nil || !job.AvailableAt.After(now)
	}
	return false
}

func (a *Activities) load(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	rows, err := a.Jobs.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.Heartbeat
	if every <= 0 {
		every = 20 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
