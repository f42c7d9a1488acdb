package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	"github.com/yungbote/contentplan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/modules/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/apierr"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

type strategyFixture struct {
	svc   StrategyService
	plans strategyrepo.PlanRepo
	items strategyrepo.ContentItemRepo
	jobs  jobrepo.JobRunRepo
}

func newStrategyFixture(t *testing.T) strategyFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	plans := strategyrepo.NewPlanRepo(db, log)
	items := strategyrepo.NewContentItemRepo(db, log)
	dist := strategyrepo.NewPillarDistributionRepo(db, log)
	audit := strategyrepo.NewAiResponseRepo(db, log)
	jobs := jobrepo.NewJobRunRepo(db, log)
	jobSvc := NewJobService(db, log, jobs, nil, nil, JobServiceConfig{Mode: DispatchWorker})
	queue := NewStrategyBatchQueue(jobSvc)
	engine := strategy.NewQuantityEngine(db, log, items, strategy.NewIdeaEnricher(log, dist), strategy.NewRandom(7))
	sched := strategy.NewScheduler(strategy.SchedulerDeps{
		DB:     db,
		Log:    log,
		Plans:  plans,
		Items:  items,
		Dist:   dist,
		Audit:  audit,
		Engine: engine,
		Queue:  queue,
	}, strategy.SchedulerConfig{})
	return strategyFixture{
		svc:   NewStrategyService(db, log, plans, items, audit, sched, engine, queue),
		plans: plans,
		items: items,
		jobs:  jobs,
	}
}

func validInput() CreatePlanInput {
	return CreatePlanInput{
		BrandID:          uuid.New(),
		OwnerUserID:      uuid.New(),
		BrandName:        "Acme Coffee",
		Month:            "2026-11",
		FrequencyPerWeek: 3,
		Platforms:        []string{" TikTok ", ""},
	}
}

func statusOf(err error) int {
	if ae, ok := apierr.As(err); ok {
		return ae.Status
	}
	return 0
}

func TestCreatePlan_QueuesStrategistBatchOne(t *testing.T) {
	f := newStrategyFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	plan, err := f.svc.CreatePlan(dbc, validInput())
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if plan.Status != types.PlanPending || plan.Phase != types.PhaseStrategist {
		t.Fatalf("unexpected plan state %s/%s", plan.Status, plan.Phase)
	}
	if got := plan.Platforms.Data(); len(got) != 1 || got[0] != "tiktok" {
		t.Fatalf("unexpected platforms %v", got)
	}

	key := BatchDedupeKey(strategy.BatchJob{PlanID: plan.ID, Phase: types.PhaseStrategist, BatchNumber: 1})
	job, err := f.jobs.GetByDedupeKey(dbc, key)
	if err != nil {
		t.Fatalf("GetByDedupeKey: %v", err)
	}
	if job == nil {
		t.Fatalf("expected a queued job for %s", key)
	}
	if job.JobType != JobTypeStrategyBatch || job.EntityID == nil || *job.EntityID != plan.ID {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestCreatePlan_DuplicateMonthConflicts(t *testing.T) {
	f := newStrategyFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	in := validInput()
	if _, err := f.svc.CreatePlan(dbc, in); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	_, err := f.svc.CreatePlan(dbc, in)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestCreatePlan_Validation(t *testing.T) {
	f := newStrategyFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	cases := map[string]func(*CreatePlanInput){
		"bad month":      func(in *CreatePlanInput) { in.Month = "2026-13" },
		"zero frequency": func(in *CreatePlanInput) { in.FrequencyPerWeek = 0 },
		"no brand name":  func(in *CreatePlanInput) { in.BrandName = "  " },
		"bad platform":   func(in *CreatePlanInput) { in.Platforms = []string{"myspace"} },
		"no owner":       func(in *CreatePlanInput) { in.OwnerUserID = uuid.Nil },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		if _, err := f.svc.CreatePlan(dbc, in); statusOf(err) != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %v", name, err)
		}
	}
}

func TestStartCreator_RequiresCompletedStrategist(t *testing.T) {
	f := newStrategyFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	plan, err := f.svc.CreatePlan(dbc, validInput())
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if _, err := f.svc.StartCreator(dbc, plan.ID); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409 for pending plan, got %v", err)
	}
	if _, err := f.svc.StartCreator(dbc, uuid.New()); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown plan, got %v", err)
	}

	if err := f.plans.UpdateFields(dbc, plan.ID, map[string]interface{}{"status": types.PlanCompleted}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if _, err := f.svc.StartCreator(dbc, plan.ID); err != nil {
		t.Fatalf("StartCreator: %v", err)
	}
	key := BatchDedupeKey(strategy.BatchJob{PlanID: plan.ID, Phase: types.PhaseCreator, BatchNumber: 1})
	job, err := f.jobs.GetByDedupeKey(dbc, key)
	if err != nil || job == nil {
		t.Fatalf("expected creator batch 1 job, got %v (err=%v)", job, err)
	}
}

func TestRematerialize_IsIdempotent(t *testing.T) {
	f := newStrategyFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	in := validInput()
	in.FrequencyPerWeek = 1
	plan, err := f.svc.CreatePlan(dbc, in)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if _, err := f.svc.Rematerialize(dbc, plan.ID); statusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409 before the weekly plan exists, got %v", err)
	}

	var weeks []types.WeekPlan
	for w := 1; w <= types.WeeksPerPlan; w++ {
		weeks = append(weeks, types.WeekPlan{Week: w, Ideas: []types.Idea{{
			ID:          types.IdeaID(plan.Month, plan.BrandKey(), w, 1, types.PillarSales),
			Title:       "Idea for week",
			Hook:        "Stop scrolling",
			Description: "A short post",
			Pillar:      types.PillarSales,
			Template:    types.TemplateAvatar,
		}}})
	}
	plan.WeeklyPlan = datatypes.NewJSONType(weeks)
	if err := f.plans.Save(dbc, plan); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 0; i < 2; i++ {
		items, err := f.svc.Rematerialize(dbc, plan.ID)
		if err != nil {
			t.Fatalf("Rematerialize #%d: %v", i+1, err)
		}
		if len(items) != types.WeeksPerPlan {
			t.Fatalf("Rematerialize #%d: expected %d items, got %d", i+1, types.WeeksPerPlan, len(items))
		}
	}
	n, err := f.items.CountByPlan(dbc, plan.ID)
	if err != nil {
		t.Fatalf("CountByPlan: %v", err)
	}
	if n != int64(types.WeeksPerPlan) {
		t.Fatalf("expected %d rows, got %d", types.WeeksPerPlan, n)
	}
}

func TestPlanNotifier_PublishesOnPlanChannel(t *testing.T) {
	emit := &captureEmitter{}
	n := NewPlanNotifier(emit)
	id := uuid.New()
	n.PlanEvent(id, strategy.EventPlanCompleted, map[string]any{"items": 12})

	if len(emit.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(emit.msgs))
	}
	msg := emit.msgs[0]
	if msg.Channel != "plan:"+id.String() || string(msg.Event) != strategy.EventPlanCompleted {
		t.Fatalf("unexpected message %+v", msg)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["plan_id"] != id || data["items"] != 12 {
		t.Fatalf("unexpected data %#v", msg.Data)
	}
}

func TestNewChatClient_UnknownProvider(t *testing.T) {
	if _, err := NewChatClient(context.Background(), testutil.Logger(t), "llama"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
