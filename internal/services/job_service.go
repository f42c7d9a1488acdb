package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/ctxutil"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// Dispatch modes.
const (
	DispatchWorker   = "worker"
	DispatchTemporal = "temporal"
	DispatchInline   = "inline"
)

// WorkflowJobRun must match temporalx/jobrun.WorkflowName; kept literal to
// avoid an import cycle.
const WorkflowJobRun = "job_run"

var ErrJobNotFound = errors.New("job not found")

type EnqueueOptions struct {
	Delay     time.Duration
	DedupeKey string
}

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts EnqueueOptions) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, job *types.JobRun) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) ([]*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	SetInlineRunner(run InlineRunner)
}

// InlineRunner claims and executes a job in-process.
type InlineRunner func(ctx context.Context, jobID uuid.UUID) error

type JobServiceConfig struct {
	Mode              string
	TemporalTaskQueue string
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   jobrepo.JobRunRepo
	notify JobNotifier
	cfg    JobServiceConfig

	temporal temporalsdkclient.Client

	mu     sync.RWMutex
	inline InlineRunner
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo jobrepo.JobRunRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	cfg JobServiceConfig,
) JobService {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = DispatchWorker
	}
	if cfg.TemporalTaskQueue == "" {
		cfg.TemporalTaskQueue = "contentplan"
	}
	if notify == nil {
		notify = NewJobNotifier(nil)
	}
	return &jobService{
		db:       db,
		log:      baseLog.With("service", "JobService"),
		repo:     repo,
		notify:   notify,
		cfg:      cfg,
		temporal: tc,
	}
}

func (s *jobService) SetInlineRunner(run InlineRunner) {
	s.mu.Lock()
	s.inline = run
	s.mu.Unlock()
}

// Enqueue writes a queued job_run row and dispatches it. A non-empty
// DedupeKey that already exists returns the existing row. Inside a real
// transaction the job is only written; callers dispatch after commit.
func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts EnqueueOptions) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if s.cfg.Mode == DispatchTemporal && s.temporal == nil {
		return nil, fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}

	if opts.DedupeKey != "" {
		existing, err := s.repo.GetByDedupeKey(repoCtx, opts.DedupeKey)
		if err != nil {
			return nil, fmt.Errorf("lookup dedupe key: %w", err)
		}
		if existing != nil {
			s.log.Debug("Job already enqueued", "dedupe_key", opts.DedupeKey, "job_id", existing.ID, "status", existing.Status)
			return existing, nil
		}
	}

	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Delay > 0 && s.cfg.Mode != DispatchInline {
		at := now.Add(opts.Delay)
		job.AvailableAt = &at
	}
	if opts.DedupeKey != "" {
		key := opts.DedupeKey
		job.DedupeKey = &key
	}
	if _, err := s.repo.Create(repoCtx, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.notify.JobCreated(ownerUserID, job)

	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// isDBTransaction detects a real transaction; gorm clones *gorm.DB freely so
// pointer comparison does not work.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch hands a queued job to the configured executor. In worker mode the
// polling pool picks it up on its own. Inline mode starts the runner at once,
// ignoring available_at; the runner owns retries.
func (s *jobService) Dispatch(dbc dbctx.Context, job *types.JobRun) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("missing job")
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	delay := time.Duration(0)
	if job.AvailableAt != nil {
		delay = time.Until(*job.AvailableAt)
	}

	switch s.cfg.Mode {
	case DispatchTemporal:
		err := s.startTemporalJobWorkflow(ctx, job.ID, delay)
		if err == nil {
			return nil
		}
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return nil
		}
		s.markDispatchFailed(ctx, job, err)
		return fmt.Errorf("start temporal workflow: %w", err)
	case DispatchInline:
		s.mu.RLock()
		run := s.inline
		s.mu.RUnlock()
		if run == nil {
			return fmt.Errorf("inline dispatch has no runner")
		}
		go func(id uuid.UUID) {
			if err := run(context.WithoutCancel(ctx), id); err != nil {
				s.log.Warn("Inline job run failed", "job_id", id, "error", err)
			}
		}(job.ID)
		return nil
	default:
		return nil
	}
}

func (s *jobService) markDispatchFailed(ctx context.Context, job *types.JobRun, cause error) {
	now := time.Now().UTC()
	err := s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
		"status":        types.StatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         cause.Error(),
		"last_error_at": now,
		"locked_at":     nil,
	})
	if err != nil {
		s.log.Warn("Mark dispatch failure", "job_id", job.ID, "error", err)
	}
	job.Status = types.StatusFailed
	job.Error = cause.Error()
	s.notify.JobFailed(job.OwnerUserID, job, "dispatch", cause.Error())
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, delay time.Duration) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	if delay > 0 {
		opts.StartDelay = delay
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, WorkflowJobRun)
	return err
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	rows, err := s.repo.GetByIDs(dbc, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, ErrJobNotFound
	}
	return rows[0], nil
}

func (s *jobService) ListForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) ([]*types.JobRun, error) {
	return s.repo.ListByEntity(dbc, entityType, entityID)
}

// Cancel stops a job that has not reached a terminal status.
func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, []string{types.StatusSucceeded, types.StatusDead, types.StatusCanceled}, map[string]interface{}{
		"status":    types.StatusCanceled,
		"stage":     "canceled",
		"message":   "Canceled",
		"locked_at": nil,
	})
	if err != nil {
		return nil, err
	}
	if ok && s.temporal != nil && s.cfg.Mode == DispatchTemporal {
		if err := s.temporal.CancelWorkflow(dbc.Ctx, jobID.String(), ""); err != nil {
			var nf *serviceerror.NotFound
			if !errors.As(err, &nf) {
				s.log.Warn("Cancel temporal workflow failed", "job_id", jobID, "error", err)
			}
		}
	}
	return s.GetByID(dbc, jobID)
}
