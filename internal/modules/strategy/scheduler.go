package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy/prompts"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// Plan events published while batches run.
const (
	EventPlanProcessing     = "plan.processing"
	EventPlanBatchCompleted = "plan.batch_completed"
	EventPlanCompleted      = "plan.completed"
	EventPlanFailed         = "plan.failed"
)

// BatchJob is one unit of work: one phase, one week.
type BatchJob struct {
	PlanID       uuid.UUID `json:"plan_id"`
	Phase        string    `json:"phase"`
	BatchNumber  int       `json:"batch_number"`
	TotalBatches int       `json:"total_batches"`
	BatchID      string    `json:"batch_id"`
	Attempt      int       `json:"-"`
	MaxAttempts  int       `json:"-"`
}

func (j BatchJob) LockKey() string {
	return fmt.Sprintf("%s:%s:%d", j.PlanID, j.Phase, j.BatchNumber)
}

type BatchOutcome struct {
	PlanID      uuid.UUID `json:"plan_id"`
	Phase       string    `json:"phase"`
	BatchNumber int       `json:"batch_number"`
	PlanStatus  string    `json:"plan_status"`
	Returned    int       `json:"returned"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	NextQueued  bool      `json:"next_queued"`
	Final       bool      `json:"final"`
	Redelivered bool      `json:"redelivered,omitempty"`
}

// BatchQueue schedules the next batch. delay is advisory.
type BatchQueue interface {
	EnqueueBatch(ctx context.Context, plan *types.StrategyPlan, job BatchJob, delay time.Duration) error
}

// BatchLocker guards a batch key against concurrent redelivery. release is
// never nil when ok is true.
type BatchLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type PlanNotifier interface {
	PlanEvent(planID uuid.UUID, event string, data map[string]any)
}

type SchedulerConfig struct {
	TotalBatches     int
	InterBatchDelay  time.Duration
	LockTTL          time.Duration
	AutoStartCreator bool
	RecentItemsLimit int
}

type SchedulerDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Plans    strategyrepo.PlanRepo
	Items    strategyrepo.ContentItemRepo
	Dist     strategyrepo.PillarDistributionRepo
	Audit    strategyrepo.AiResponseRepo
	Chat     ChatClient
	Engine   *QuantityEngine
	Upserter *RefinementUpserter
	Queue    BatchQueue
	Locker   BatchLocker
	Notify   PlanNotifier
	Random   Random
}

// Scheduler runs strategist and creator batches for plans.
type Scheduler struct {
	db       *gorm.DB
	log      *logger.Logger
	plans    strategyrepo.PlanRepo
	items    strategyrepo.ContentItemRepo
	dist     strategyrepo.PillarDistributionRepo
	audit    strategyrepo.AiResponseRepo
	chat     ChatClient
	engine   *QuantityEngine
	upserter *RefinementUpserter
	queue    BatchQueue
	locker   BatchLocker
	notify   PlanNotifier
	rnd      Random
	cfg      SchedulerConfig
	tracer   trace.Tracer
	now      func() time.Time
}

func NewScheduler(deps SchedulerDeps, cfg SchedulerConfig) *Scheduler {
	if cfg.TotalBatches <= 0 {
		cfg.TotalBatches = types.WeeksPerPlan
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.RecentItemsLimit <= 0 {
		cfg.RecentItemsLimit = 30
	}
	rnd := deps.Random
	if rnd == nil {
		rnd = NewRandom(0)
	}
	notify := deps.Notify
	if notify == nil {
		notify = nopNotifier{}
	}
	locker := deps.Locker
	if locker == nil {
		locker = NopLocker{}
	}
	return &Scheduler{
		db:       deps.DB,
		log:      deps.Log.With("component", "BatchScheduler"),
		plans:    deps.Plans,
		items:    deps.Items,
		dist:     deps.Dist,
		audit:    deps.Audit,
		chat:     deps.Chat,
		engine:   deps.Engine,
		upserter: deps.Upserter,
		queue:    deps.Queue,
		locker:   locker,
		notify:   notify,
		rnd:      rnd,
		cfg:      cfg,
		tracer:   otel.Tracer("contentplan/strategy"),
		now:      time.Now,
	}
}

func (s *Scheduler) TotalBatches() int { return s.cfg.TotalBatches }

// RunBatch executes one batch. Fatal errors and exhausted transport retries
// mark the plan failed and stop the chain; the returned outcome then carries
// PlanStatus "failed". A transport error with attempts left leaves the plan
// processing and is returned for the job layer to retry.
func (s *Scheduler) RunBatch(ctx context.Context, job BatchJob) (out BatchOutcome, err error) {
	if job.TotalBatches <= 0 {
		job.TotalBatches = s.cfg.TotalBatches
	}
	if job.BatchID == "" {
		job.BatchID = uuid.NewString()
	}
	out = BatchOutcome{PlanID: job.PlanID, Phase: job.Phase, BatchNumber: job.BatchNumber}
	if job.Phase != types.PhaseStrategist && job.Phase != types.PhaseCreator {
		return out, fmt.Errorf("%w: %q", ErrUnknownPhase, job.Phase)
	}
	if job.BatchNumber < 1 || job.BatchNumber > job.TotalBatches {
		return out, fmt.Errorf("batch %d outside 1..%d", job.BatchNumber, job.TotalBatches)
	}

	release, ok, err := s.locker.Acquire(ctx, job.LockKey(), s.cfg.LockTTL)
	if err != nil {
		return out, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		return out, ErrBatchInFlight
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "strategy.run_batch", trace.WithAttributes(
		attribute.String("plan.id", job.PlanID.String()),
		attribute.String("batch.phase", job.Phase),
		attribute.Int("batch.number", job.BatchNumber),
		attribute.Int("batch.total", job.TotalBatches),
	))
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	plan, err := s.plans.GetByID(dbc, job.PlanID)
	if err != nil {
		return out, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return out, ErrPlanNotFound
	}
	out.PlanStatus = plan.Status
	if plan.Terminal() {
		s.log.Info("Plan already failed; dropping batch", "plan_id", plan.ID, "phase", job.Phase, "batch", job.BatchNumber)
		return out, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s batch %d: %v", job.Phase, job.BatchNumber, r)
			out = s.fail(ctx, plan, job, out, err)
		}
	}()

	switch job.Phase {
	case types.PhaseStrategist:
		out, err = s.runStrategist(ctx, plan, job, out)
	default:
		out, err = s.runCreator(ctx, plan, job, out)
	}
	if err == nil {
		return out, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, ErrPlanNotReady) || errors.Is(err, ErrBatchInFlight) {
		return out, err
	}
	if IsUpstream(err) && !IsFatal(err) && job.Attempt < job.MaxAttempts {
		s.releaseClaims(ctx, plan, job)
		if uerr := s.plans.UpdateFields(dbc, plan.ID, map[string]interface{}{"error_message": err.Error()}); uerr != nil {
			s.log.Warn("Record transient error failed", "plan_id", plan.ID, "error", uerr)
		}
		s.log.Warn("Batch transport error; job will retry",
			"plan_id", plan.ID,
			"phase", job.Phase,
			"batch", job.BatchNumber,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"error", err,
		)
		return out, err
	}
	out = s.fail(ctx, plan, job, out, err)
	return out, err
}

// fail marks the plan failed and releases items claimed by the batch.
func (s *Scheduler) fail(ctx context.Context, plan *types.StrategyPlan, job BatchJob, out BatchOutcome, cause error) BatchOutcome {
	s.releaseClaims(ctx, plan, job)
	msg := cause.Error()
	err := s.plans.UpdateFields(dbctx.Context{Ctx: ctx}, plan.ID, map[string]interface{}{
		"status":        types.PlanFailed,
		"error_message": msg,
		"failed_batch":  job.BatchNumber,
		"failed_phase":  job.Phase,
	})
	if err != nil {
		s.log.Error("Mark plan failed", "plan_id", plan.ID, "error", err)
	}
	s.log.Error("Batch failed; plan stopped",
		"plan_id", plan.ID,
		"phase", job.Phase,
		"batch", job.BatchNumber,
		"error", msg,
	)
	s.notify.PlanEvent(plan.ID, EventPlanFailed, map[string]any{
		"phase":         job.Phase,
		"batch":         job.BatchNumber,
		"error_message": msg,
	})
	out.PlanStatus = types.PlanFailed
	return out
}

// releaseClaims resets items this creator batch claimed back to draft.
func (s *Scheduler) releaseClaims(ctx context.Context, plan *types.StrategyPlan, job BatchJob) {
	if job.Phase != types.PhaseCreator {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}
	claimed, err := s.items.ListByPlanWeek(dbc, plan.ID, job.BatchNumber, []string{types.ItemInProgress})
	if err != nil {
		s.log.Warn("List claimed items failed", "plan_id", plan.ID, "error", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(claimed))
	for _, it := range claimed {
		ids = append(ids, it.ID)
	}
	n, err := s.items.UpdateStatusByIDs(dbc, ids, []string{types.ItemInProgress}, types.ItemDraft)
	if err != nil {
		s.log.Warn("Reset claimed items failed", "plan_id", plan.ID, "error", err)
		return
	}
	if n > 0 {
		s.log.Info("Reset claimed items to draft", "plan_id", plan.ID, "batch", job.BatchNumber, "count", n)
	}
}

// enqueueNext schedules batch+1 of the same phase.
func (s *Scheduler) enqueueNext(ctx context.Context, plan *types.StrategyPlan, job BatchJob) error {
	next := BatchJob{
		PlanID:       plan.ID,
		Phase:        job.Phase,
		BatchNumber:  job.BatchNumber + 1,
		TotalBatches: job.TotalBatches,
		BatchID:      uuid.NewString(),
	}
	if err := s.queue.EnqueueBatch(ctx, plan, next, s.cfg.InterBatchDelay); err != nil {
		return fmt.Errorf("enqueue %s batch %d: %w", next.Phase, next.BatchNumber, err)
	}
	return nil
}

type chatCall struct {
	prompt   prompts.Prompt
	raw      string
	duration time.Duration
	err      error
	// shape is the response layout the parser accepted, when it knows one.
	shape string
}

// callChat invokes the collaborator and writes the audit row whatever the
// outcome.
func (s *Scheduler) callChat(ctx context.Context, plan *types.StrategyPlan, job BatchJob, p prompts.Prompt) chatCall {
	ctx, span := s.tracer.Start(ctx, "strategy.chat", trace.WithAttributes(
		attribute.String("chat.provider", s.chat.Provider()),
		attribute.String("chat.model", s.chat.Model()),
		attribute.String("prompt.name", p.Name),
		attribute.Int("prompt.version", p.Version),
	))
	defer span.End()

	start := s.now()
	raw, err := s.chat.Chat(ctx, p.System, p.User)
	call := chatCall{prompt: p, raw: raw, duration: s.now().Sub(start)}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		call.err = &UpstreamError{Provider: s.chat.Provider(), Err: err}
	}
	return call
}

func (s *Scheduler) recordAudit(ctx context.Context, plan *types.StrategyPlan, job BatchJob, call chatCall, parseErr error) {
	request, _ := json.Marshal(map[string]string{"system": call.prompt.System, "user": call.prompt.User})
	meta := map[string]any{
		"duration_ms":        call.duration.Milliseconds(),
		"prompt_fingerprint": call.prompt.Fingerprint(),
		"attempt":            job.Attempt,
		"parse":              "ok",
	}
	if call.err != nil {
		meta["error"] = call.err.Error()
		meta["parse"] = "skipped"
	} else if parseErr != nil {
		meta["error"] = parseErr.Error()
		var se *StructuralError
		if errors.As(parseErr, &se) {
			meta["parse"] = "structural_error"
		} else {
			meta["parse"] = "contract_violation"
		}
	}
	if call.shape != "" {
		meta["shape"] = call.shape
	}
	metaRaw, _ := json.Marshal(meta)
	planID := plan.ID
	row := &types.AiResponse{
		PlanID:        &planID,
		Service:       job.Phase,
		Provider:      s.chat.Provider(),
		Model:         s.chat.Model(),
		PromptName:    call.prompt.Name,
		PromptVersion: call.prompt.Version,
		BatchNumber:   job.BatchNumber,
		TotalBatches:  job.TotalBatches,
		BatchID:       job.BatchID,
		Request:       datatypes.JSON(request),
		Response:      call.raw,
		Metadata:      datatypes.JSON(metaRaw),
	}
	if err := s.audit.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		s.log.Warn("Write ai_response failed", "plan_id", plan.ID, "batch", job.BatchNumber, "error", err)
	}
}

func bulletList(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

type nopNotifier struct{}

func (nopNotifier) PlanEvent(uuid.UUID, string, map[string]any) {}

// NopLocker always grants the lock.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
