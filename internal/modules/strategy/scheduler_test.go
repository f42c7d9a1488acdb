package strategy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

var batchPattern = regexp.MustCompile(`Only produce batch (\d+) of`)

func strategistWeek(system string) int {
	m := batchPattern.FindStringSubmatch(system)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// happyChat answers strategist prompts with perWeek ideas (one fewer in week
// 2 and one more in week 3) and creator prompts with echo refinements.
func happyChat(perWeek int) func(int, string, string) (string, error) {
	return func(_ int, system, user string) (string, error) {
		if week := strategistWeek(system); week > 0 {
			n := perWeek
			switch week {
			case 2:
				n--
			case 3:
				n++
			}
			return weekResponse(week, n), nil
		}
		return echoRefinements(user)
	}
}

func firstBatch(plan *types.StrategyPlan, phase string) BatchJob {
	return BatchJob{PlanID: plan.ID, Phase: phase, BatchNumber: 1, TotalBatches: 4, BatchID: "b1"}
}

func runStrategistPhase(t *testing.T, h *harness, plan *types.StrategyPlan) {
	t.Helper()
	out, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseStrategist))
	require.NoError(t, err)
	require.True(t, out.NextQueued)
	h.drain(t)
}

func TestRunBatch_StrategistPhaseCompletesWithExactQuantity(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(3)
	plan := h.newPlan(t, "Acme Coffee", 3)

	runStrategistPhase(t, h, plan)

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanCompleted, got.Status)
	require.Equal(t, types.PhaseStrategist, got.Phase)
	weeks := got.WeeklyPlan.Data()
	require.Len(t, weeks, 4)
	for _, w := range weeks {
		require.Len(t, w.Ideas, 3, "week %d", w.Week)
	}
	require.Equal(t, 12, got.TotalIdeas)
	require.Equal(t, 3, got.InferredFrequency)
	require.NotNil(t, got.CompletedAt)

	n, err := h.items.CountByPlan(h.dbc(), plan.ID)
	require.NoError(t, err)
	require.EqualValues(t, 12, n)

	dist, err := h.dist.ListByPlan(h.dbc(), plan.ID)
	require.NoError(t, err)
	require.Len(t, dist, 12)

	audit, err := h.audit.ListByPlan(h.dbc(), plan.ID, 0)
	require.NoError(t, err)
	require.Len(t, audit, 4)
	require.Equal(t, types.PhaseStrategist, audit[0].Service)
	require.Contains(t, string(audit[0].Metadata), "prompt_fingerprint")
	require.Contains(t, string(audit[0].Metadata), "per_batch")

	acc := got.Accumulator(types.PhaseStrategist)
	require.Equal(t, 4, acc.LastProcessed)
	require.Equal(t, 2, acc.ByWeek[2].Returned)
	require.Equal(t, 3, acc.ByWeek[2].Processed)
	require.Equal(t, 4, acc.ByWeek[3].Returned)
	require.Equal(t, 3, acc.ByWeek[3].Processed)
	require.Equal(t, 12, acc.TotalProcessed())

	require.Contains(t, h.notifier.events, EventPlanProcessing)
	require.Contains(t, h.notifier.events, EventPlanCompleted)
	require.Equal(t, 0, h.queue.size())
}

func TestRunBatch_BrandsSharingANameKeepTheirTitles(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(2)
	first := h.newPlan(t, "Acme Coffee", 2)
	second := h.newPlan(t, "Acme Coffee", 2)

	runStrategistPhase(t, h, first)
	runStrategistPhase(t, h, second)

	for _, plan := range []*types.StrategyPlan{first, second} {
		require.Equal(t, types.PlanCompleted, h.reload(t, plan.ID).Status)
		items, err := h.items.ListByPlan(h.dbc(), plan.ID)
		require.NoError(t, err)
		require.Len(t, items, 8)
		for _, it := range items {
			require.Equal(t, types.RecoveryNone, it.RecoveryMode, "content_id %s", it.ContentID)
			require.Equal(t, it.Title, it.ContentName)
			require.Contains(t, it.ContentID, plan.BrandKey())
		}
	}
}

func TestRunBatch_SeenTitlesReachLaterPrompts(t *testing.T) {
	h := newHarness(t)
	var lastUser string
	inner := happyChat(3)
	h.chat.respond = func(n int, system, user string) (string, error) {
		lastUser = user
		return inner(n, system, user)
	}
	plan := h.newPlan(t, "Acme Coffee", 3)
	runStrategistPhase(t, h, plan)
	require.Contains(t, lastUser, "W1 idea 1")
	require.NotContains(t, lastUser, "W4 idea 1")
}

func TestRunBatch_StructuralErrorStopsThePlan(t *testing.T) {
	h := newHarness(t)
	good := happyChat(2)
	h.chat.respond = func(n int, system, user string) (string, error) {
		if strategistWeek(system) == 2 {
			return "Sorry, I cannot help with that.", nil
		}
		return good(n, system, user)
	}
	plan := h.newPlan(t, "Acme Coffee", 2)

	_, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseStrategist))
	require.NoError(t, err)
	job, ok := h.queue.pop()
	require.True(t, ok)

	out, err := h.scheduler.RunBatch(context.Background(), job)
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	require.Equal(t, types.PlanFailed, out.PlanStatus)
	require.False(t, out.NextQueued)
	require.Equal(t, 0, h.queue.size())

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanFailed, got.Status)
	require.Equal(t, 2, got.FailedBatch)
	require.Equal(t, types.PhaseStrategist, got.FailedPhase)
	require.Contains(t, got.ErrorMessage, "not valid JSON")
	require.Contains(t, h.notifier.events, EventPlanFailed)

	// A late redelivery of the next batch is dropped.
	out, err = h.scheduler.RunBatch(context.Background(), BatchJob{PlanID: plan.ID, Phase: types.PhaseStrategist, BatchNumber: 3, TotalBatches: 4})
	require.NoError(t, err)
	require.False(t, out.NextQueued)
	require.Equal(t, 2, h.chat.calls)

	audit, _ := h.audit.ListByPlan(h.dbc(), plan.ID, 0)
	require.Len(t, audit, 2)
	require.Contains(t, string(audit[1].Metadata), "structural_error")
}

func TestRunBatch_TransportErrorRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = func(int, string, string) (string, error) {
		return "", fmt.Errorf("context deadline exceeded")
	}
	plan := h.newPlan(t, "Acme Coffee", 2)

	job := firstBatch(plan, types.PhaseStrategist)
	job.Attempt, job.MaxAttempts = 1, 3
	out, err := h.scheduler.RunBatch(context.Background(), job)
	require.Error(t, err)
	require.True(t, IsUpstream(err))
	require.NotEqual(t, types.PlanFailed, out.PlanStatus)

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanProcessing, got.Status)
	require.Contains(t, got.ErrorMessage, "deadline")

	job.Attempt = 3
	out, err = h.scheduler.RunBatch(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, types.PlanFailed, out.PlanStatus)
	require.Equal(t, types.PlanFailed, h.reload(t, plan.ID).Status)
}

func TestRunBatch_RedeliveryIsANoop(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(2)
	plan := h.newPlan(t, "Acme Coffee", 2)

	_, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseStrategist))
	require.NoError(t, err)
	out, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseStrategist))
	require.NoError(t, err)
	require.True(t, out.Redelivered)
	require.True(t, out.NextQueued)
	require.Equal(t, 1, h.chat.calls)
}

func TestRunBatch_LegacyShapeIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = func(_ int, system, _ string) (string, error) {
		week := strategistWeek(system)
		return fmt.Sprintf(`{"strategy_name": "Autumn push", "weekly_plan": [{"week_number": %d, "content_pieces": [{"title": "Legacy %d", "pillar": "content"}]}]}`, week, week), nil
	}
	plan := h.newPlan(t, "Acme Coffee", 1)
	runStrategistPhase(t, h, plan)

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanCompleted, got.Status)
	require.Equal(t, "Autumn push", got.StrategyName)
	require.Equal(t, "Legacy 3", got.WeeklyPlan.Data()[2].Ideas[0].Title)

	audit, err := h.audit.ListByPlan(h.dbc(), plan.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	require.Contains(t, string(audit[0].Metadata), "multi_week")
}

func TestRunBatch_CreatorPhaseRefinesEveryItem(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(3)
	plan := h.newPlan(t, "Acme Coffee", 3)
	runStrategistPhase(t, h, plan)

	require.NoError(t, h.scheduler.StartCreator(context.Background(), plan.ID))
	outs := h.drain(t)
	require.Len(t, outs, 4)
	require.True(t, outs[3].Final)

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PhaseCreator, got.Phase)
	require.Equal(t, types.PlanCompleted, got.Status)
	require.Equal(t, 12, got.ItemsExpected)
	require.Equal(t, 12, got.ItemsProcessed)
	require.InDelta(t, 1.0, got.CompletionRate, 1e-9)

	items, err := h.items.ListByPlan(h.dbc(), plan.ID)
	require.NoError(t, err)
	require.Len(t, items, 12)
	for _, it := range items {
		require.Equal(t, types.ItemInProduction, it.Status)
		require.True(t, strings.HasSuffix(it.ContentName, " final"))
	}

	err = h.scheduler.StartCreator(context.Background(), plan.ID)
	require.True(t, errors.Is(err, ErrPlanNotReady))
}

func TestRunBatch_CreatorMissingItemsKeyFailsPlan(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(2)
	plan := h.newPlan(t, "Acme Coffee", 2)
	runStrategistPhase(t, h, plan)

	h.chat.respond = func(int, string, string) (string, error) { return `{"wrong_key": "value"}`, nil }
	out, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseCreator))
	var cv *ContractViolation
	require.True(t, errors.As(err, &cv))
	require.Equal(t, types.PlanFailed, out.PlanStatus)

	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "items")
	require.Equal(t, types.PhaseCreator, got.FailedPhase)

	items, _ := h.items.ListByPlan(h.dbc(), plan.ID)
	for _, it := range items {
		require.Equal(t, types.ItemDraft, it.Status, it.ContentID)
	}
	require.Equal(t, 0, h.queue.size())
}

func TestRunBatch_CreatorIsolatesBadItems(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(2)
	plan := h.newPlan(t, "Acme Coffee", 2)
	runStrategistPhase(t, h, plan)

	foreign := h.newPlan(t, "Elsewhere", 1)
	require.NoError(t, h.items.Create(h.dbc(), draftItem(foreign, "foreign-1", "Foreign")))

	h.chat.respond = func(_ int, _ string, user string) (string, error) {
		raw, err := echoRefinements(user)
		if err != nil {
			return "", err
		}
		return strings.Replace(raw, `{"items":[`, `{"items":[{"id":"foreign-1","content_name":"Stolen","week":1},`, 1), nil
	}
	out, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseCreator))
	require.NoError(t, err)
	require.Equal(t, 2, out.Processed)
	require.Equal(t, 1, out.Failed)
	require.True(t, out.NextQueued)

	week1, _ := h.items.ListByPlanWeek(h.dbc(), plan.ID, 1, nil)
	for _, it := range week1 {
		require.Equal(t, types.ItemInProduction, it.Status)
	}
	got := h.reload(t, plan.ID)
	require.Equal(t, types.PlanProcessing, got.Status)
	require.Equal(t, types.PhaseCreator, got.Phase)
}

func TestRunBatch_CreatorMaterializesWhenNoDrafts(t *testing.T) {
	h := newHarness(t)
	h.chat.respond = happyChat(1)
	plan := h.newPlan(t, "Acme Coffee", 1)
	plan.WeeklyPlan = datatypes.NewJSONType(monthOfIdeas(plan.Month, plan.BrandKey(), 1))
	require.NoError(t, h.plans.UpdateFields(h.dbc(), plan.ID, map[string]interface{}{
		"weekly_plan": plan.WeeklyPlan,
		"status":      types.PlanCompleted,
		"total_ideas": 4,
	}))

	out, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseCreator))
	require.NoError(t, err)
	require.Equal(t, 1, out.Processed)
	n, _ := h.items.CountByPlan(h.dbc(), plan.ID)
	require.EqualValues(t, 4, n)
}

func TestRunBatch_CreatorRefusesUnfinishedPlan(t *testing.T) {
	h := newHarness(t)
	plan := h.newPlan(t, "Acme Coffee", 1)
	_, err := h.scheduler.RunBatch(context.Background(), firstBatch(plan, types.PhaseCreator))
	require.True(t, errors.Is(err, ErrPlanNotReady))
	require.Equal(t, types.PlanPending, h.reload(t, plan.ID).Status)
}
