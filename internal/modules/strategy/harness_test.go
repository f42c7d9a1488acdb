package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	"github.com/yungbote/contentplan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type scriptedChat struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, system, user string) (string, error)
}

func (c *scriptedChat) Chat(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	return c.respond(n, system, user)
}

func (c *scriptedChat) Provider() string { return "scripted" }
func (c *scriptedChat) Model() string    { return "test-model" }

type recordingQueue struct {
	mu   sync.Mutex
	jobs []BatchJob
}

func (q *recordingQueue) EnqueueBatch(ctx context.Context, plan *types.StrategyPlan, job BatchJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) pop() (BatchJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return BatchJob{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *recordingQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) PlanEvent(planID uuid.UUID, event string, data map[string]any) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

type harness struct {
	db        *gorm.DB
	log       *logger.Logger
	plans     strategyrepo.PlanRepo
	items     strategyrepo.ContentItemRepo
	dist      strategyrepo.PillarDistributionRepo
	audit     strategyrepo.AiResponseRepo
	engine    *QuantityEngine
	resolver  *UniquenessResolver
	upserter  *RefinementUpserter
	queue     *recordingQueue
	notifier  *recordingNotifier
	chat      *scriptedChat
	scheduler *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		db:       db,
		log:      log,
		plans:    strategyrepo.NewPlanRepo(db, log),
		items:    strategyrepo.NewContentItemRepo(db, log),
		dist:     strategyrepo.NewPillarDistributionRepo(db, log),
		audit:    strategyrepo.NewAiResponseRepo(db, log),
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
		chat:     &scriptedChat{},
	}
	rnd := NewRandom(42)
	h.engine = NewQuantityEngine(db, log, h.items, NewIdeaEnricher(log, h.dist), rnd)
	h.resolver = NewUniquenessResolver(h.items, DefaultNameAttemptCeiling)
	h.upserter = NewRefinementUpserter(db, log, h.items, h.resolver)
	h.scheduler = NewScheduler(SchedulerDeps{
		DB:       db,
		Log:      log,
		Plans:    h.plans,
		Items:    h.items,
		Dist:     h.dist,
		Audit:    h.audit,
		Chat:     h.chat,
		Engine:   h.engine,
		Upserter: h.upserter,
		Queue:    h.queue,
		Notify:   h.notifier,
		Random:   rnd,
	}, SchedulerConfig{TotalBatches: types.WeeksPerPlan})
	return h
}

func (h *harness) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (h *harness) newPlan(t *testing.T, brand string, perWeek int) *types.StrategyPlan {
	t.Helper()
	plan := &types.StrategyPlan{
		BrandID:          uuid.New(),
		OwnerUserID:      uuid.New(),
		BrandName:        brand,
		Month:            "2026-10",
		FrequencyPerWeek: perWeek,
		Brief:            "Grow awareness for the autumn menu.",
		Platforms:        datatypes.NewJSONType([]string{"instagram"}),
	}
	require.NoError(t, h.plans.Create(h.dbc(), plan))
	return plan
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *types.StrategyPlan {
	t.Helper()
	plan, err := h.plans.GetByID(h.dbc(), id)
	require.NoError(t, err)
	require.NotNil(t, plan)
	return plan
}

// monthOfIdeas builds four weeks of perWeek ideas rotating through pillars.
func monthOfIdeas(month, brandKey string, perWeek int) []types.WeekPlan {
	weeks := make([]types.WeekPlan, 0, types.WeeksPerPlan)
	n := 0
	for w := 1; w <= types.WeeksPerPlan; w++ {
		var ideas []types.Idea
		for i := 1; i <= perWeek; i++ {
			pillar := types.Pillars[n%len(types.Pillars)]
			n++
			ideas = append(ideas, types.Idea{
				ID:          types.IdeaID(month, brandKey, w, i, pillar),
				Title:       fmt.Sprintf("Week %d idea %d", w, i),
				Hook:        "Did you know?",
				Description: fmt.Sprintf("Idea %d for week %d", i, w),
				Pillar:      pillar,
				Template:    types.TemplateAvatar,
			})
		}
		weeks = append(weeks, types.WeekPlan{Week: w, Ideas: ideas})
	}
	return weeks
}

func weekResponse(week, count int) string {
	ideas := make([]map[string]any, 0, count)
	for i := 1; i <= count; i++ {
		ideas = append(ideas, map[string]any{
			"title":       fmt.Sprintf("W%d idea %d", week, i),
			"hook":        "Stop scrolling",
			"description": fmt.Sprintf("Description %d.%d", week, i),
			"pillar":      string(types.Pillars[(i-1)%len(types.Pillars)]),
			"template":    "avatar",
		})
	}
	raw, _ := json.Marshal(map[string]any{"week": week, "ideas": ideas})
	return "```json\n" + string(raw) + "\n```"
}

// echoRefinements answers a creator prompt by refining every input item.
func echoRefinements(user string) (string, error) {
	start := strings.Index(user, "[")
	if start < 0 {
		return `{"items": []}`, nil
	}
	var in []map[string]any
	if err := json.Unmarshal([]byte(user[start:]), &in); err != nil {
		return "", err
	}
	out := make([]map[string]any, 0, len(in))
	for _, it := range in {
		out = append(out, map[string]any{
			"id":               it["id"],
			"origin_id":        it["origin_id"],
			"week":             it["week"],
			"pilar":            it["pilar"],
			"content_name":     fmt.Sprintf("%v final", it["content_name"]),
			"status":           "in_production",
			"template":         it["template"],
			"video_source":     "avatar",
			"platform":         "instagram",
			"post_description": "Caption",
			"text_base":        "Line one\nLine two",
			"hashtags":         []string{"coffee", "#autumn"},
		})
	}
	raw, _ := json.Marshal(map[string]any{"items": out})
	return string(raw), nil
}

// drain runs queued batches until the queue is empty.
func (h *harness) drain(t *testing.T) []BatchOutcome {
	t.Helper()
	var outs []BatchOutcome
	for i := 0; i < 20; i++ {
		job, ok := h.queue.pop()
		if !ok {
			return outs
		}
		out, _ := h.scheduler.RunBatch(context.Background(), job)
		outs = append(outs, out)
	}
	t.Fatalf("queue did not drain")
	return nil
}
