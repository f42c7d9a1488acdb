package strategy

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy/prompts"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

func (s *Scheduler) runStrategist(ctx context.Context, plan *types.StrategyPlan, job BatchJob, out BatchOutcome) (BatchOutcome, error) {
	dbc := dbctx.Context{Ctx: ctx}
	week := job.BatchNumber
	final := job.BatchNumber == job.TotalBatches
	out.Final = final

	if job.BatchNumber == 1 {
		changed, err := s.plans.UpdateFieldsIfStatus(dbc, plan.ID, []string{types.PlanPending}, map[string]interface{}{
			"status": types.PlanProcessing,
			"phase":  types.PhaseStrategist,
		})
		if err != nil {
			return out, fmt.Errorf("mark processing: %w", err)
		}
		if changed {
			plan.Status = types.PlanProcessing
			s.notify.PlanEvent(plan.ID, EventPlanProcessing, map[string]any{"phase": types.PhaseStrategist})
		}
	}
	out.PlanStatus = plan.Status

	acc := plan.Accumulator(types.PhaseStrategist)
	if acc.Completed(week) {
		return s.strategistRedelivered(ctx, plan, job, out)
	}

	p, err := prompts.Build(prompts.PromptStrategistBatch, s.strategistInput(dbc, plan, job, acc))
	if err != nil {
		return out, fmt.Errorf("build prompt: %w", err)
	}
	call := s.callChat(ctx, plan, job, p)
	if call.err != nil {
		s.recordAudit(ctx, plan, job, call, nil)
		return out, call.err
	}
	payload, perr := ParseStrategistResponse(call.raw, job.BatchNumber)
	if perr == nil {
		call.shape = "per_batch"
		if payload.Legacy {
			call.shape = "multi_week"
		}
	}
	s.recordAudit(ctx, plan, job, call, perr)
	if perr != nil {
		return out, perr
	}

	if payload.Legacy {
		s.log.Warn("Strategist returned the multi-week shape; extracting this week",
			"plan_id", plan.ID,
			"batch", job.BatchNumber,
			"weeks", len(payload.WeeklyPlan),
		)
	} else if payload.Week != 0 && payload.Week != week {
		s.log.Warn("Strategist labelled batch with another week", "plan_id", plan.ID, "batch", job.BatchNumber, "week", payload.Week)
	}
	ideas := payload.IdeasForWeek(week)
	out.Returned = len(ideas)
	s.log.Info("Strategist batch parsed",
		"plan_id", plan.ID,
		"batch", job.BatchNumber,
		"ideas", len(ideas),
		"expected", plan.FrequencyPerWeek,
	)

	// Ideas are stored raw and normalized at finalization; Processed is what
	// this week will contribute after that.
	processed := len(ideas)
	if plan.FrequencyPerWeek > 0 {
		processed = plan.FrequencyPerWeek
	}
	now := s.now().UTC()
	acc.Record(types.WeekResult{
		Week:        week,
		BatchID:     job.BatchID,
		Ideas:       ideas,
		Returned:    len(ideas),
		Processed:   processed,
		CompletedAt: &now,
	})
	plan.StrategistBatches = datatypes.NewJSONType(acc)
	if plan.StrategyName == "" && payload.StrategyName != "" {
		plan.StrategyName = payload.StrategyName
	}
	if plan.Objective == "" && payload.Objective != "" {
		plan.Objective = payload.Objective
	}

	var items []*types.ContentItem
	err = inTx(dbc, s.db, func(txc dbctx.Context) error {
		if err := s.plans.UpdateFields(txc, plan.ID, map[string]interface{}{
			"strategist_batches": plan.StrategistBatches,
			"strategy_name":      plan.StrategyName,
			"objective":          plan.Objective,
		}); err != nil {
			return fmt.Errorf("save accumulator: %w", err)
		}
		if !final {
			return nil
		}
		var ferr error
		items, ferr = s.finalizeStrategist(txc, plan)
		return ferr
	})
	if err != nil {
		return out, err
	}
	out.Processed = processed

	s.notify.PlanEvent(plan.ID, EventPlanBatchCompleted, map[string]any{
		"phase": types.PhaseStrategist,
		"batch": job.BatchNumber,
		"total": job.TotalBatches,
		"ideas": len(ideas),
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
		"phase":       types.PhaseStrategist,
		"total_ideas": plan.TotalIdeas,
		"items":       len(items),
	})
	if s.cfg.AutoStartCreator {
		if err := s.startCreator(ctx, plan); err != nil {
			s.log.Warn("Auto-start creator phase failed", "plan_id", plan.ID, "error", err)
		} else {
			out.NextQueued = true
		}
	}
	return out, nil
}

// strategistRedelivered handles a batch already recorded: it only makes sure
// the chain continues.
func (s *Scheduler) strategistRedelivered(ctx context.Context, plan *types.StrategyPlan, job BatchJob, out BatchOutcome) (BatchOutcome, error) {
	out.Redelivered = true
	s.log.Info("Strategist batch already recorded", "plan_id", plan.ID, "batch", job.BatchNumber)
	if job.BatchNumber < job.TotalBatches {
		if err := s.enqueueNext(ctx, plan, job); err != nil {
			return out, err
		}
		out.NextQueued = true
	}
	return out, nil
}

// finalizeStrategist assembles the month from the accumulator, completes the
// plan and materializes its items. It runs inside the caller's transaction.
func (s *Scheduler) finalizeStrategist(txc dbctx.Context, plan *types.StrategyPlan) ([]*types.ContentItem, error) {
	acc := plan.StrategistBatches.Data()
	weeks := make([]types.WeekPlan, 0, types.WeeksPerPlan)
	for _, r := range acc.Weeks() {
		weeks = append(weeks, types.WeekPlan{Week: r.Week, Ideas: r.Ideas})
	}

	normalized, err := Normalize(StrategistPayload{WeeklyPlan: weeks}, types.WeeksPerPlan, plan.FrequencyPerWeek, s.rnd)
	if err != nil {
		return nil, err
	}
	final := AssignIdeaIDs(plan.Month, plan.BrandKey(), normalized.WeeklyPlan)
	counts := make([]string, 0, len(final))
	for _, w := range final {
		counts = append(counts, fmt.Sprintf("w%d=%d", w.Week, len(w.Ideas)))
	}
	total := types.CountIdeas(final)
	s.log.Info("Weekly plan normalized", "plan_id", plan.ID, "counts", strings.Join(counts, " "), "total", total)

	now := s.now().UTC()
	plan.WeeklyPlan = datatypes.NewJSONType(final)
	plan.TotalIdeas = total
	plan.InferredFrequency = (total + types.WeeksPerPlan/2) / types.WeeksPerPlan
	plan.ItemsExpected = total
	plan.Status = types.PlanCompleted
	plan.ErrorMessage = ""
	plan.CompletedAt = &now
	if err := s.plans.UpdateFields(txc, plan.ID, map[string]interface{}{
		"weekly_plan":        plan.WeeklyPlan,
		"total_ideas":        plan.TotalIdeas,
		"inferred_frequency": plan.InferredFrequency,
		"items_expected":     plan.ItemsExpected,
		"status":             plan.Status,
		"error_message":      "",
		"completed_at":       plan.CompletedAt,
	}); err != nil {
		return nil, fmt.Errorf("finalize plan: %w", err)
	}
	if err := s.dist.Upsert(txc, DistributionRows(plan.ID, final)); err != nil {
		return nil, fmt.Errorf("write pillar distribution: %w", err)
	}
	items, err := s.engine.Materialize(txc, plan)
	if err != nil {
		return nil, fmt.Errorf("materialize items: %w", err)
	}
	if len(items) != total {
		s.log.Error("Item count differs from plan after materialization", "plan_id", plan.ID, "expected", total, "actual", len(items))
	}
	return items, nil
}

func (s *Scheduler) strategistInput(dbc dbctx.Context, plan *types.StrategyPlan, job BatchJob, acc types.BatchAccumulator) prompts.Input {
	pillars := make([]string, 0, len(types.Pillars))
	for _, p := range types.Pillars {
		pillars = append(pillars, string(p))
	}
	templates := []string{
		string(types.TemplateAvatar),
		string(types.TemplateAvatarGreenscreen),
		string(types.TemplateNarrationImages),
		string(types.TemplateNarrationStock),
	}
	var recent []string
	if prior, err := s.items.ListRecentByBrand(dbc, plan.BrandID, plan.ID, s.cfg.RecentItemsLimit); err != nil {
		s.log.Warn("Load recent items failed", "plan_id", plan.ID, "error", err)
	} else {
		for _, it := range prior {
			recent = append(recent, it.ContentName)
		}
	}
	return prompts.Input{
		BrandName:        plan.BrandName,
		BrandVoice:       plan.BrandVoice,
		Guardrails:       plan.Guardrails,
		Brief:            plan.Brief,
		Platforms:        strings.Join(plan.Platforms.Data(), ", "),
		Month:            plan.Month,
		BatchNumber:      job.BatchNumber,
		TotalBatches:     job.TotalBatches,
		Week:             job.BatchNumber,
		FrequencyPerWeek: plan.FrequencyPerWeek,
		PillarsCSV:       strings.Join(pillars, ", "),
		TemplatesCSV:     strings.Join(templates, ", "),
		SeenTitles:       bulletList(acc.SeenTitles(job.BatchNumber)),
		RecentItemNames:  bulletList(recent),
	}
}
