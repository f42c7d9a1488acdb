package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	"github.com/yungbote/contentplan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/ctxutil"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
	if got := p.Backoff(0); got != time.Second {
		t.Fatalf("attempt 0 should clamp to base, got %s", got)
	}
}

func TestPermanent_Wraps(t *testing.T) {
	base := errors.New("bad input")
	err := fmt.Errorf("stage: %w", Permanent(base))
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("expected permanent wrapper around base, got %v", err)
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
	if IsPermanent(base) {
		t.Fatalf("plain error reported permanent")
	}
}

func newRunningJob(t *testing.T, attempts int, payload string) (*Context, jobrepo.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	repo := jobrepo.NewJobRunRepo(db, testutil.Logger(t))
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     "test",
		Status:      types.StatusRunning,
		Attempts:    attempts,
		Payload:     datatypes.JSON([]byte(payload)),
		Result:      datatypes.JSON([]byte(`{}`)),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return NewContext(context.Background(), db, job, repo, nil, RetryPolicy{MaxAttempts: 3, Base: time.Minute}), repo
}

func reload(t *testing.T, repo jobrepo.JobRunRepo, id uuid.UUID) *types.JobRun {
	t.Helper()
	rows, err := repo.GetByIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{id})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: rows=%d err=%v", len(rows), err)
	}
	return rows[0]
}

func TestFail_BacksOffBeforeLastAttempt(t *testing.T) {
	jc, repo := newRunningJob(t, 2, `{}`)
	before := time.Now()
	jc.Fail("run", errors.New("flaky"))

	got := reload(t, repo, jc.Job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.AvailableAt == nil || got.AvailableAt.Before(before.Add(2*time.Minute-time.Second)) {
		t.Fatalf("expected available_at about 2m out, got %v", got.AvailableAt)
	}
	if got.Error != "flaky" {
		t.Fatalf("unexpected error text %q", got.Error)
	}
}

func TestFail_LastAttemptIsDead(t *testing.T) {
	jc, repo := newRunningJob(t, 3, `{}`)
	jc.Fail("run", errors.New("flaky"))
	if got := reload(t, repo, jc.Job.ID); got.Status != types.StatusDead {
		t.Fatalf("expected dead, got %s", got.Status)
	}
}

func TestFail_PermanentIsDead(t *testing.T) {
	jc, repo := newRunningJob(t, 1, `{}`)
	jc.Fail("run", Permanent(errors.New("nope")))
	got := reload(t, repo, jc.Job.ID)
	if got.Status != types.StatusDead || got.AvailableAt != nil {
		t.Fatalf("expected dead without retry time, got %s %v", got.Status, got.AvailableAt)
	}
}

func TestFail_DoesNotOverwriteCanceled(t *testing.T) {
	jc, repo := newRunningJob(t, 1, `{}`)
	if err := repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, jc.Job.ID, map[string]interface{}{"status": types.StatusCanceled}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	jc.Fail("run", errors.New("late"))
	if got := reload(t, repo, jc.Job.ID); got.Status != types.StatusCanceled {
		t.Fatalf("expected canceled to stick, got %s", got.Status)
	}
}

func TestSucceed_StoresResult(t *testing.T) {
	jc, repo := newRunningJob(t, 1, `{}`)
	jc.Succeed("done", map[string]any{"items": 12})
	got := reload(t, repo, jc.Job.ID)
	if got.Status != types.StatusSucceeded || got.Progress != 100 {
		t.Fatalf("unexpected job %s/%d", got.Status, got.Progress)
	}
	var res map[string]int
	if err := json.Unmarshal(got.Result, &res); err != nil || res["items"] != 12 {
		t.Fatalf("unexpected result %s", string(got.Result))
	}
}

func TestContext_PayloadAndTraceData(t *testing.T) {
	id := uuid.New()
	jc, _ := newRunningJob(t, 1, fmt.Sprintf(`{"plan_id":%q,"trace_id":"t-9","request_id":"r-9"}`, id))

	got, ok := jc.PayloadUUID("plan_id")
	if !ok || got != id {
		t.Fatalf("PayloadUUID: %v %v", got, ok)
	}
	var out struct {
		PlanID uuid.UUID `json:"plan_id"`
	}
	if err := jc.DecodePayload(&out); err != nil || out.PlanID != id {
		t.Fatalf("DecodePayload: %v %v", out.PlanID, err)
	}
	td := ctxutil.GetTraceData(jc.Ctx)
	if td == nil || td.TraceID != "t-9" || td.RequestID != "r-9" {
		t.Fatalf("trace data not applied: %+v", td)
	}
	if jc.Attempt() != 1 || jc.LastAttempt() {
		t.Fatalf("unexpected attempt accounting %d %v", jc.Attempt(), jc.LastAttempt())
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	h := stubHandler("b")
	if err := r.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(h); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := r.Register(stubHandler("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := r.Types(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected types %v", got)
	}
}

type stubHandler string

func (s stubHandler) Type() string        { return string(s) }
func (s stubHandler) Run(*Context) error { return nil }
