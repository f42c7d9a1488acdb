package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
)

const (
	pollInterval      = 5 * time.Second
	maxRetryWait      = 30 * time.Minute
	continueTickLimit = 500
)

// Workflow drives one job_run row (the workflow ID is the job ID) until it
// succeeds, is canceled or dies. Retries follow the row's available_at.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}
		switch out.Status {
		case types.StatusSucceeded, types.StatusCanceled:
			return nil
		case types.StatusDead:
			return fmt.Errorf("job %s dead after %d attempts (stage=%s): %s", jobID, out.Attempts, out.Stage, out.Error)
		}
		if err := workflow.Sleep(ctx, waitFor(workflow.Now(ctx), out)); err != nil {
			return err
		}
		if tick >= continueTickLimit {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func waitFor(now time.Time, out TickResult) time.Duration {
	if out.Status != types.StatusFailed || out.RetryAt == nil {
		return pollInterval
	}
	d := out.RetryAt.Sub(now)
	switch {
	case d <= 0:
		return time.Second
	case d > maxRetryWait:
		return maxRetryWait
	}
	return d
}
