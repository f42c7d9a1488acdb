package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/apierr"
	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

const maxFrequencyPerWeek = 14

type CreatePlanInput struct {
	BrandID          uuid.UUID `json:"brand_id"`
	OwnerUserID      uuid.UUID `json:"owner_user_id"`
	BrandName        string    `json:"brand_name"`
	Month            string    `json:"month"`
	FrequencyPerWeek int       `json:"frequency_per_week"`
	Brief            string    `json:"brief"`
	BrandVoice       string    `json:"brand_voice"`
	Guardrails       string    `json:"guardrails"`
	Platforms        []string  `json:"platforms"`
}

func (in *CreatePlanInput) normalize() error {
	in.BrandName = strings.TrimSpace(in.BrandName)
	in.Month = strings.TrimSpace(in.Month)
	switch {
	case in.BrandID == uuid.Nil:
		return fmt.Errorf("brand_id is required")
	case in.OwnerUserID == uuid.Nil:
		return fmt.Errorf("owner_user_id is required")
	case in.BrandName == "":
		return fmt.Errorf("brand_name is required")
	case !monthPattern.MatchString(in.Month):
		return fmt.Errorf("month must be YYYY-MM")
	case in.FrequencyPerWeek < 1 || in.FrequencyPerWeek > maxFrequencyPerWeek:
		return fmt.Errorf("frequency_per_week must be between 1 and %d", maxFrequencyPerWeek)
	}
	platforms := make([]string, 0, len(in.Platforms))
	for _, p := range in.Platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !types.ValidPlatform(p) {
			return fmt.Errorf("unknown platform %q", p)
		}
		platforms = append(platforms, p)
	}
	if len(platforms) == 0 {
		platforms = []string{types.DefaultPlatform}
	}
	in.Platforms = platforms
	return nil
}

type StrategyService interface {
	CreatePlan(dbc dbctx.Context, in CreatePlanInput) (*types.StrategyPlan, error)
	GetPlan(dbc dbctx.Context, id uuid.UUID) (*types.StrategyPlan, error)
	ListPlansByBrand(dbc dbctx.Context, brandID uuid.UUID) ([]*types.StrategyPlan, error)
	ListItems(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error)
	StartCreator(dbc dbctx.Context, planID uuid.UUID) (*types.StrategyPlan, error)
	Rematerialize(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error)
	ListAiResponses(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.AiResponse, error)
}

type strategyService struct {
	db        *gorm.DB
	log       *logger.Logger
	plans     strategyrepo.PlanRepo
	items     strategyrepo.ContentItemRepo
	audit     strategyrepo.AiResponseRepo
	scheduler *strategy.Scheduler
	engine    *strategy.QuantityEngine
	queue     strategy.BatchQueue
}

func NewStrategyService(
	db *gorm.DB,
	baseLog *logger.Logger,
	plans strategyrepo.PlanRepo,
	items strategyrepo.ContentItemRepo,
	audit strategyrepo.AiResponseRepo,
	scheduler *strategy.Scheduler,
	engine *strategy.QuantityEngine,
	queue strategy.BatchQueue,
) StrategyService {
	return &strategyService{
		db:        db,
		log:       baseLog.With("service", "StrategyService"),
		plans:     plans,
		items:     items,
		audit:     audit,
		scheduler: scheduler,
		engine:    engine,
		queue:     queue,
	}
}

// CreatePlan stores a pending plan and queues strategist batch 1.
func (s *strategyService) CreatePlan(dbc dbctx.Context, in CreatePlanInput) (*types.StrategyPlan, error) {
	if err := in.normalize(); err != nil {
		return nil, apierr.BadRequest(apierr.CodeInvalidPlan, err)
	}
	existing, err := s.plans.GetByBrandMonth(dbc, in.BrandID, in.Month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierr.Conflict(apierr.CodePlanExists, fmt.Errorf("a plan for %s already exists (id=%s)", in.Month, existing.ID))
	}
	plan := &types.StrategyPlan{
		BrandID:          in.BrandID,
		OwnerUserID:      in.OwnerUserID,
		BrandName:        in.BrandName,
		Month:            in.Month,
		FrequencyPerWeek: in.FrequencyPerWeek,
		Brief:            strings.TrimSpace(in.Brief),
		BrandVoice:       strings.TrimSpace(in.BrandVoice),
		Guardrails:       strings.TrimSpace(in.Guardrails),
		Platforms:        datatypes.NewJSONType(in.Platforms),
		Status:           types.PlanPending,
		Phase:            types.PhaseStrategist,
	}
	if err := s.plans.Create(dbc, plan); err != nil {
		if dberr.IsUnique(err) {
			return nil, apierr.Conflict(apierr.CodePlanExists, fmt.Errorf("a plan for %s already exists", in.Month))
		}
		return nil, fmt.Errorf("create plan: %w", err)
	}

	job := strategy.BatchJob{
		PlanID:       plan.ID,
		Phase:        types.PhaseStrategist,
		BatchNumber:  1,
		TotalBatches: s.scheduler.TotalBatches(),
		BatchID:      uuid.NewString(),
	}
	if err := s.queue.EnqueueBatch(dbc.Ctx, plan, job, 0); err != nil {
		msg := fmt.Sprintf("enqueue strategist batch 1: %v", err)
		if uerr := s.plans.UpdateFields(dbc, plan.ID, map[string]interface{}{
			"status":        types.PlanFailed,
			"error_message": msg,
			"failed_batch":  1,
			"failed_phase":  types.PhaseStrategist,
		}); uerr != nil {
			s.log.Error("Mark plan failed after enqueue error", "plan_id", plan.ID, "error", uerr)
		}
		return nil, fmt.Errorf("%s", msg)
	}
	s.log.Info("Strategy plan created",
		"plan_id", plan.ID,
		"brand_id", plan.BrandID,
		"month", plan.Month,
		"frequency_per_week", plan.FrequencyPerWeek,
	)
	return plan, nil
}

func (s *strategyService) GetPlan(dbc dbctx.Context, id uuid.UUID) (*types.StrategyPlan, error) {
	plan, err := s.plans.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apierr.NotFound(apierr.CodePlanNotFound, strategy.ErrPlanNotFound)
	}
	return plan, nil
}

func (s *strategyService) ListPlansByBrand(dbc dbctx.Context, brandID uuid.UUID) ([]*types.StrategyPlan, error) {
	if brandID == uuid.Nil {
		return nil, apierr.BadRequest(apierr.CodeInvalidBrand, fmt.Errorf("brand_id is required"))
	}
	return s.plans.ListByBrand(dbc, brandID)
}

func (s *strategyService) ListItems(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error) {
	if _, err := s.GetPlan(dbc, planID); err != nil {
		return nil, err
	}
	return s.items.ListByPlan(dbc, planID)
}

func (s *strategyService) StartCreator(dbc dbctx.Context, planID uuid.UUID) (*types.StrategyPlan, error) {
	err := s.scheduler.StartCreator(dbc.Ctx, planID)
	switch {
	case errors.Is(err, strategy.ErrPlanNotFound):
		return nil, apierr.NotFound(apierr.CodePlanNotFound, err)
	case errors.Is(err, strategy.ErrPlanNotReady):
		return nil, apierr.Conflict(apierr.CodePlanNotReady, err)
	case err != nil:
		return nil, err
	}
	return s.GetPlan(dbc, planID)
}

// Rematerialize reruns the quantity guarantee for a plan whose month is
// already assembled. Existing items are reused, so the call is idempotent.
func (s *strategyService) Rematerialize(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error) {
	plan, err := s.GetPlan(dbc, planID)
	if err != nil {
		return nil, err
	}
	if len(plan.WeeklyPlan.Data()) == 0 {
		return nil, apierr.Conflict(apierr.CodePlanNotReady, fmt.Errorf("plan has no weekly plan yet (status=%s)", plan.Status))
	}
	start := time.Now()
	items, err := s.engine.Materialize(dbc, plan)
	if err != nil {
		return nil, err
	}
	s.log.Info("Plan rematerialized", "plan_id", plan.ID, "items", len(items), "duration", time.Since(start).String())
	return items, nil
}

func (s *strategyService) ListAiResponses(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.AiResponse, error) {
	if planID == uuid.Nil {
		return nil, apierr.BadRequest(apierr.CodeInvalidPlan, fmt.Errorf("plan_id is required"))
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audit.ListByPlan(dbc, planID, limit)
}
