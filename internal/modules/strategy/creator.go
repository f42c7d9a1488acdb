package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy/prompts"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

// startCreator queues creator batch 1 for a completed plan.
func (s *Scheduler) startCreator(ctx context.Context, plan *types.StrategyPlan) error {
	job := BatchJob{
		PlanID:       plan.ID,
		Phase:        types.PhaseCreator,
		BatchNumber:  1,
		TotalBatches: s.cfg.TotalBatches,
		BatchID:      uuid.NewString(),
	}
	return s.queue.EnqueueBatch(ctx, plan, job, 0)
}

// StartCreator queues the creator phase. The plan must have finished its
// strategist phase.
func (s *Scheduler) StartCreator(ctx context.Context, planID uuid.UUID) error {
	plan, err := s.plans.GetByID(dbctx.Context{Ctx: ctx}, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return ErrPlanNotFound
	}
	if plan.Phase != types.PhaseStrategist || plan.Status != types.PlanCompleted {
		return fmt.Errorf("%w: phase=%s status=%s", ErrPlanNotReady, plan.Phase, plan.Status)
	}
	return s.startCreator(ctx, plan)
}

func (s *Scheduler) runCreator(ctx context.Context, plan *types.StrategyPlan, job BatchJob, out BatchOutcome) (BatchOutcome, error) {
	dbc := dbctx.Context{Ctx: ctx}
	week := job.BatchNumber
	final := job.BatchNumber == job.TotalBatches
	out.Final = final

	ready := (plan.Phase == types.PhaseStrategist && plan.Status == types.PlanCompleted) ||
		(plan.Phase == types.PhaseCreator && (plan.Status == types.PlanProcessing || plan.Status == types.PlanCompleted))
	if !ready {
		return out, fmt.Errorf("%w: phase=%s status=%s", ErrPlanNotReady, plan.Phase, plan.Status)
	}

	if job.BatchNumber == 1 {
		if plan.Phase == types.PhaseStrategist {
			changed, err := s.plans.UpdateFieldsIfStatus(dbc, plan.ID, []string{types.PlanCompleted}, map[string]interface{}{
				"phase":  types.PhaseCreator,
				"status": types.PlanProcessing,
			})
			if err != nil {
				return out, fmt.Errorf("mark creator processing: %w", err)
			}
			if changed {
				plan.Phase = types.PhaseCreator
				plan.Status = types.PlanProcessing
				s.notify.PlanEvent(plan.ID, EventPlanProcessing, map[string]any{"phase": types.PhaseCreator})
			}
		}
		n, err := s.items.CountByPlan(dbc, plan.ID)
		if err != nil {
			return out, fmt.Errorf("count items: %w", err)
		}
		if n == 0 {
			s.log.Warn("Creator phase found no drafts; materializing", "plan_id", plan.ID)
			if _, err := s.engine.Materialize(dbc, plan); err != nil {
				return out, fmt.Errorf("materialize items: %w", err)
			}
		}
	}
	out.PlanStatus = plan.Status

	acc := plan.Accumulator(types.PhaseCreator)
	if acc.Completed(week) {
		out.Redelivered = true
		s.log.Info("Creator batch already recorded", "plan_id", plan.ID, "batch", job.BatchNumber)
		if !final {
			if err := s.enqueueNext(ctx, plan, job); err != nil {
				return out, err
			}
			out.NextQueued = true
		}
		return out, nil
	}

	items, err := s.items.ListByPlanWeek(dbc, plan.ID, week, []string{types.ItemDraft, types.ItemInProgress})
	if err != nil {
		return out, fmt.Errorf("list week items: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if _, err := s.items.UpdateStatusByIDs(dbc, ids, []string{types.ItemDraft, types.ItemInProgress}, types.ItemInProgress); err != nil {
		return out, fmt.Errorf("claim items: %w", err)
	}

	result := types.WeekResult{Week: week, BatchID: job.BatchID}
	if len(items) > 0 {
		refined, err := s.refineWeek(ctx, plan, job, items)
		if err != nil {
			return out, err
		}
		result.Returned = len(refined.Items) + refined.Undecoded
		result.Failed = refined.Undecoded
		scope := BatchScope{BatchNumber: job.BatchNumber, BatchID: job.BatchID, Week: week}
		for _, r := range refined.Items {
			res, err := s.upserter.Upsert(dbc, plan, r, scope)
			if err != nil || res.Outcome == OutcomeSkipped {
				result.Failed++
				s.log.Warn("Refinement not merged",
					"plan_id", plan.ID,
					"batch", job.BatchNumber,
					"content_id", r.ContentID,
					"origin_id", r.OriginID,
					"error", err,
				)
				continue
			}
			result.Processed++
		}
	} else {
		s.log.Info("No items to refine in week", "plan_id", plan.ID, "week", week)
	}
	out.Returned = result.Returned
	out.Processed = result.Processed
	out.Failed = result.Failed

	now := s.now().UTC()
	result.CompletedAt = &now
	acc.Record(result)
	plan.CreatorBatches = datatypes.NewJSONType(acc)

	err = inTx(dbc, s.db, func(txc dbctx.Context) error {
		if err := s.plans.UpdateFields(txc, plan.ID, map[string]interface{}{"creator_batches": plan.CreatorBatches}); err != nil {
			return fmt.Errorf("save accumulator: %w", err)
		}
		if !final {
			return nil
		}
		return s.finalizeCreator(txc, plan, acc)
	})
	if err != nil {
		return out, err
	}

	s.notify.PlanEvent(plan.ID, EventPlanBatchCompleted, map[string]any{
		"phase":     types.PhaseCreator,
		"batch":     job.BatchNumber,
		"total":     job.TotalBatches,
		"processed": result.Processed,
		"failed":    result.Failed,
	})

	if !final {
		if err := s.enqueueNext(ctx, plan, job); err != nil {
			return out, err
		}
		out.NextQueued = true
		return out, nil
	}
	out.PlanStatus = types.PlanCompleted
	s.notify.PlanEvent(plan.ID, EventPlanCompleted, map[string]any{
		"phase":           types.PhaseCreator,
		"items_processed": plan.ItemsProcessed,
		"items_expected":  plan.ItemsExpected,
		"completion_rate": plan.CompletionRate,
	})
	return out, nil
}

func (s *Scheduler) refineWeek(ctx context.Context, plan *types.StrategyPlan, job BatchJob, items []*types.ContentItem) (CreatorResponse, error) {
	payload, err := json.MarshalIndent(creatorItems(items), "", "  ")
	if err != nil {
		return CreatorResponse{}, fmt.Errorf("encode items: %w", err)
	}
	p, err := prompts.Build(prompts.PromptCreatorBatch, prompts.Input{
		BrandName:    plan.BrandName,
		BrandVoice:   plan.BrandVoice,
		Guardrails:   plan.Guardrails,
		Month:        plan.Month,
		BatchNumber:  job.BatchNumber,
		TotalBatches: job.TotalBatches,
		Week:         job.BatchNumber,
		ItemsJSON:    string(payload),
	})
	if err != nil {
		return CreatorResponse{}, fmt.Errorf("build prompt: %w", err)
	}
	call := s.callChat(ctx, plan, job, p)
	if call.err != nil {
		s.recordAudit(ctx, plan, job, call, nil)
		return CreatorResponse{}, call.err
	}
	resp, perr := ParseCreatorResponse(call.raw, job.BatchNumber)
	s.recordAudit(ctx, plan, job, call, perr)
	if perr != nil {
		return CreatorResponse{}, perr
	}
	if resp.Undecoded > 0 {
		s.log.Warn("Creator items could not be decoded", "plan_id", plan.ID, "batch", job.BatchNumber, "count", resp.Undecoded)
	}
	return resp, nil
}

// finalizeCreator forces stuck items into production and records completion
// metrics.
func (s *Scheduler) finalizeCreator(txc dbctx.Context, plan *types.StrategyPlan, acc types.BatchAccumulator) error {
	stuck, err := s.items.UpdateStatusInPlan(txc, plan.ID, types.ItemInProgress, types.ItemInProduction)
	if err != nil {
		return fmt.Errorf("release stuck items: %w", err)
	}
	if stuck > 0 {
		s.log.Warn("Forced stuck items into production", "plan_id", plan.ID, "count", stuck)
	}
	expected := plan.TotalIdeas
	if expected == 0 {
		expected = plan.ExpectedIdeas()
	}
	processed := acc.TotalProcessed()
	rate := 0.0
	if expected > 0 {
		rate = float64(processed) / float64(expected)
	}
	now := s.now().UTC()
	plan.ItemsExpected = expected
	plan.ItemsProcessed = processed
	plan.CompletionRate = rate
	plan.Status = types.PlanCompleted
	plan.CompletedAt = &now
	return s.plans.UpdateFields(txc, plan.ID, map[string]interface{}{
		"items_expected":  expected,
		"items_processed": processed,
		"completion_rate": rate,
		"status":          types.PlanCompleted,
		"error_message":   "",
		"completed_at":    &now,
	})
}

type creatorItem struct {
	ID          string         `json:"id"`
	OriginID    string         `json:"origin_id"`
	Week        int            `json:"week"`
	Pillar      types.Pillar   `json:"pilar"`
	ContentName string         `json:"content_name"`
	Title       string         `json:"title,omitempty"`
	Hook        string         `json:"hook,omitempty"`
	Description string         `json:"description,omitempty"`
	Template    types.Template `json:"template"`
	Platform    string         `json:"platform"`
	Day         string         `json:"day_of_the_week"`
	ShotPlan    types.ShotPlan `json:"shotplan"`
}

func creatorItems(items []*types.ContentItem) []creatorItem {
	out := make([]creatorItem, 0, len(items))
	for _, it := range items {
		out = append(out, creatorItem{
			ID:          it.ContentID,
			OriginID:    it.OriginID,
			Week:        it.Week,
			Pillar:      it.Pillar,
			ContentName: it.ContentName,
			Title:       it.Title,
			Hook:        it.Hook,
			Description: it.Description,
			Template:    it.Template,
			Platform:    it.Platform,
			Day:         it.DayOfTheWeek,
			ShotPlan:    it.ShotPlan.Data(),
		})
	}
	return out
}
