package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contentplan-backend/internal/jobs/pipeline/strategy_batch"
	jobruntime "github.com/yungbote/contentplan-backend/internal/jobs/runtime"
	"github.com/yungbote/contentplan-backend/internal/jobs/worker"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/observability"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/realtime"
	"github.com/yungbote/contentplan-backend/internal/services"
	"github.com/yungbote/contentplan-backend/internal/temporalx/temporalworker"
)

type Services struct {
	// Jobs + notifications
	JobNotifier  services.JobNotifier
	JobService   services.JobService
	PlanNotifier *services.PlanNotifier

	// Strategy
	Strategy  services.StrategyService
	Scheduler *strategy.Scheduler
	Engine    *strategy.QuantityEngine

	// Job infra
	JobRegistry    *jobruntime.Registry
	Executor       *worker.Executor
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, opts Options, repos Repos, hub *realtime.SSEHub, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var emitter services.SSEEmitter
	if clients.SSEBus != nil {
		// Every process forwards the bus into its own hub.
		emitter = &services.RedisEmitter{Bus: clients.SSEBus, Log: log}
	} else {
		emitter = &services.HubEmitter{Hub: hub}
	}

	jobNotifier := services.NewJobNotifier(emitter)
	planNotifier := services.NewPlanNotifier(emitter)
	jobService := services.NewJobService(db, log, repos.JobRun, jobNotifier, clients.Temporal, services.JobServiceConfig{
		Mode:              cfg.Jobs.Dispatch,
		TemporalTaskQueue: clients.TemporalCfg.TaskQueue,
	})
	queue := services.NewStrategyBatchQueue(jobService)

	rnd := strategy.NewRandom(int64(cfg.Strategy.RandomSeed))
	enricher := strategy.NewIdeaEnricher(log, repos.Dist)
	engine := strategy.NewQuantityEngine(db, log, repos.Items, enricher, rnd)
	resolver := strategy.NewUniquenessResolver(repos.Items, cfg.Strategy.NameAttemptCeiling)
	upserter := strategy.NewRefinementUpserter(db, log, repos.Items, resolver)

	var locker strategy.BatchLocker
	if clients.Redis != nil {
		locker = services.NewRedisBatchLocker(log, clients.Redis, cfg.Redis.Prefix+"batch-lock:")
	}

	scheduler := strategy.NewScheduler(strategy.SchedulerDeps{
		DB:       db,
		Log:      log,
		Plans:    repos.Plans,
		Items:    repos.Items,
		Dist:     repos.Dist,
		Audit:    repos.Audit,
		Chat:     clients.Chat,
		Engine:   engine,
		Upserter: upserter,
		Queue:    queue,
		Locker:   locker,
		Notify:   planNotifier,
		Random:   rnd,
	}, strategy.SchedulerConfig{
		InterBatchDelay:  cfg.interBatchDelay(),
		LockTTL:          time.Duration(cfg.Strategy.LockTTLSeconds) * time.Second,
		AutoStartCreator: cfg.Strategy.AutoStartCreator,
	})

	strategyService := services.NewStrategyService(db, log, repos.Plans, repos.Items, repos.Audit, scheduler, engine, queue)

	// Job registry
	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(strategy_batch.New(log, scheduler, metrics)); err != nil {
		return Services{}, err
	}

	policy := jobruntime.RetryPolicy{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		Base:        time.Duration(cfg.Jobs.RetryBaseSeconds) * time.Second,
	}.WithDefaults()
	executor := worker.NewExecutor(db, log, repos.JobRun, jobRegistry, jobNotifier, policy)

	if cfg.Jobs.Dispatch == services.DispatchInline {
		jobService.SetInlineRunner(func(ctx context.Context, jobID uuid.UUID) error {
			_, err := executor.RunUntilTerminal(ctx, jobID)
			return err
		})
	}

	var jobWorker *worker.Worker
	if opts.RunWorker && cfg.Jobs.Dispatch == services.DispatchWorker {
		jobWorker = worker.NewWorker(log, repos.JobRun, executor, worker.Config{
			Concurrency:  cfg.Jobs.Concurrency,
			PollInterval: time.Duration(cfg.Jobs.PollIntervalMS) * time.Millisecond,
			StaleRunning: time.Duration(cfg.Jobs.StaleRunningMinutes) * time.Minute,
		})
	}

	var temporalRunner *temporalworker.Runner
	if opts.RunWorker && cfg.Jobs.Dispatch == services.DispatchTemporal {
		w, err := temporalworker.NewRunner(log, clients.Temporal, clients.TemporalCfg, repos.JobRun, executor, cfg.Jobs.Concurrency)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		temporalRunner = w
	}

	return Services{
		JobNotifier:    jobNotifier,
		JobService:     jobService,
		PlanNotifier:   planNotifier,
		Strategy:       strategyService,
		Scheduler:      scheduler,
		Engine:         engine,
		JobRegistry:    jobRegistry,
		Executor:       executor,
		JobWorker:      jobWorker,
		TemporalWorker: temporalRunner,
	}, nil
}
