package worker

import (
	"context"
	"sync"
	"time"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	StaleRunning time.Duration
}

// Worker is a pool of polling loops over job_run.
type Worker struct {
	log  *logger.Logger
	repo jobrepo.JobRunRepo
	exec *Executor
	cfg  Config
	wg   sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo jobrepo.JobRunRepo, exec *Executor, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 30 * time.Minute
	}
	return &Worker{
		log:  baseLog.With("component", "JobWorker"),
		repo: repo,
		exec: exec,
		cfg:  cfg,
	}
}

// Start launches the loops; they stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

// Run starts the pool and blocks until ctx is done and every loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.Start(ctx)
	w.Wait()
	return nil
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for w.poll(ctx, workerID) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// poll claims and runs at most one job; it reports whether one ran.
func (w *Worker) poll(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.exec.Policy().MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	w.log.Debug("Claimed job", "worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	w.exec.Run(ctx, job)
	return true
}
