package strategy_batch

import (
	"errors"
	"fmt"
	"time"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	jobrt "github.com/yungbote/contentplan-backend/internal/jobs/runtime"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}

	var job strategy.BatchJob
	if err := jc.DecodePayload(&job); err != nil {
		jc.Fail("decode", jobrt.Permanent(err))
		return nil
	}
	job.Attempt = jc.Attempt()
	job.MaxAttempts = jc.Policy.MaxAttempts

	total := job.TotalBatches
	if total <= 0 {
		total = types.WeeksPerPlan
	}
	jc.Progress(job.Phase, progressFor(job.BatchNumber-1, total), fmt.Sprintf("Running %s batch %d of %d", job.Phase, job.BatchNumber, total))

	start := time.Now()
	out, err := p.scheduler.RunBatch(jc.Ctx, job)
	p.metrics.ObserveBatch(job.Phase, outcomeLabel(out, err), time.Since(start), out.Processed)
	if err != nil {
		if permanent(out, err) {
			err = jobrt.Permanent(err)
		}
		p.log.Warn("Strategy batch failed",
			"plan_id", job.PlanID,
			"phase", job.Phase,
			"batch", job.BatchNumber,
			"attempt", job.Attempt,
			"plan_status", out.PlanStatus,
			"error", err,
		)
		jc.Fail(job.Phase, err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}

// permanent reports whether retrying the batch cannot help: the plan is
// already failed or gone, or the scheduler rejected the job itself.
func permanent(out strategy.BatchOutcome, err error) bool {
	switch {
	case out.PlanStatus == types.PlanFailed:
		return true
	case errors.Is(err, strategy.ErrPlanNotFound), errors.Is(err, strategy.ErrUnknownPhase):
		return true
	case errors.Is(err, strategy.ErrBatchInFlight), errors.Is(err, strategy.ErrPlanNotReady):
		return false
	case strategy.IsFatal(err):
		return true
	}
	return false
}

func outcomeLabel(out strategy.BatchOutcome, err error) string {
	switch {
	case out.PlanStatus == types.PlanFailed:
		return "failed"
	case err != nil:
		return "retry"
	case out.Redelivered:
		return "redelivered"
	case out.Final:
		return "completed"
	}
	return "ok"
}

func progressFor(done, total int) int {
	if total <= 0 || done <= 0 {
		return 1
	}
	pct := done * 100 / total
	if pct > 99 {
		pct = 99
	}
	return pct
}
