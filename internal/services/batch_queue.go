package services

import (
	"context"
	"time"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

const (
	JobTypeStrategyBatch = "strategy_batch"
	EntityStrategyPlan   = "strategy_plan"
)

// StrategyBatchQueue turns scheduler batches into job_run rows. Each batch
// key is enqueued at most once.
type StrategyBatchQueue struct {
	jobs JobService
}

func NewStrategyBatchQueue(jobs JobService) *StrategyBatchQueue {
	return &StrategyBatchQueue{jobs: jobs}
}

func BatchDedupeKey(job strategy.BatchJob) string {
	return JobTypeStrategyBatch + ":" + job.LockKey()
}

func (q *StrategyBatchQueue) EnqueueBatch(ctx context.Context, plan *types.StrategyPlan, job strategy.BatchJob, delay time.Duration) error {
	entityID := plan.ID
	payload := map[string]any{
		"plan_id":       job.PlanID.String(),
		"phase":         job.Phase,
		"batch_number":  job.BatchNumber,
		"total_batches": job.TotalBatches,
		"batch_id":      job.BatchID,
	}
	_, err := q.jobs.Enqueue(dbctx.Context{Ctx: ctx}, plan.OwnerUserID, JobTypeStrategyBatch, EntityStrategyPlan, &entityID, payload, EnqueueOptions{
		Delay:     delay,
		DedupeKey: BatchDedupeKey(job),
	})
	return err
}
