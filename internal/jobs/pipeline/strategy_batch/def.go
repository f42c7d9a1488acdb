package strategy_batch

import (
	"context"

	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/services"
)

// BatchRunner is the part of the scheduler this job drives.
type BatchRunner interface {
	RunBatch(ctx context.Context, job strategy.BatchJob) (strategy.BatchOutcome, error)
}

type Pipeline struct {
	log       *logger.Logger
	scheduler BatchRunner
	metrics   *observability.Metrics
}

func New(baseLog *logger.Logger, scheduler BatchRunner, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", services.JobTypeStrategyBatch),
		scheduler: scheduler,
		metrics:   metrics,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeStrategyBatch }
