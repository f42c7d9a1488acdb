package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	"github.com/yungbote/contentplan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/jobs/runtime"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/services"
)

type funcHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
}

func (h funcHandler) Type() string                 { return h.jobType }
func (h funcHandler) Run(jc *runtime.Context) error { return h.run(jc) }

func seedJob(t *testing.T, repo jobrepo.JobRunRepo, jobType string) uuid.UUID {
	t.Helper()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     jobType,
		Status:      types.StatusQueued,
		Payload:     datatypes.JSON([]byte(`{}`)),
		Result:      datatypes.JSON([]byte(`{}`)),
	}
	if _, err := repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job.ID
}

func newExecutor(t *testing.T, handlers ...runtime.Handler) (*Executor, jobrepo.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewExecutor(db, log, repo, reg, nil, runtime.RetryPolicy{MaxAttempts: 3}), repo
}

func newFastRetryExecutor(t *testing.T, handlers ...runtime.Handler) (*Executor, jobrepo.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewExecutor(db, log, repo, reg, nil, runtime.RetryPolicy{MaxAttempts: 3, Base: 10 * time.Millisecond}), repo
}

func statusOf(t *testing.T, repo jobrepo.JobRunRepo, id uuid.UUID) *types.JobRun {
	t.Helper()
	rows, err := repo.GetByIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{id})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: rows=%d err=%v", len(rows), err)
	}
	return rows[0]
}

func TestWorker_DrainsQueueAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	var ran int32
	exec, repo := newExecutor(t, funcHandler{jobType: "echo", run: func(jc *runtime.Context) error {
		atomic.AddInt32(&ran, 1)
		jc.Succeed("done", map[string]any{"ok": true})
		return nil
	}})
	ids := []uuid.UUID{seedJob(t, repo, "echo"), seedJob(t, repo, "echo"), seedJob(t, repo, "echo")}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(testutil.Logger(t), repo, exec, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&ran) < int32(len(ids)) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}

	if got := atomic.LoadInt32(&ran); got != int32(len(ids)) {
		t.Fatalf("expected %d runs, got %d", len(ids), got)
	}
	for _, id := range ids {
		if st := statusOf(t, repo, id).Status; st != types.StatusSucceeded {
			t.Fatalf("job %s: expected succeeded, got %s", id, st)
		}
	}
}

func TestExecutor_HandlerOutcomes(t *testing.T) {
	exec, repo := newExecutor(t,
		funcHandler{jobType: "quiet", run: func(*runtime.Context) error { return nil }},
		funcHandler{jobType: "flaky", run: func(*runtime.Context) error { return errors.New("try later") }},
		funcHandler{jobType: "broken", run: func(*runtime.Context) error { return runtime.Permanent(errors.New("never")) }},
		funcHandler{jobType: "panics", run: func(*runtime.Context) error { panic("boom") }},
	)
	ctx := context.Background()

	cases := []struct {
		jobType string
		want    string
	}{
		{"quiet", types.StatusSucceeded},
		{"flaky", types.StatusFailed},
		{"broken", types.StatusDead},
		{"panics", types.StatusFailed},
		{"unregistered", types.StatusDead},
	}
	for _, c := range cases {
		id := seedJob(t, repo, c.jobType)
		got, err := exec.RunByID(ctx, id)
		if err != nil {
			t.Fatalf("%s: RunByID: %v", c.jobType, err)
		}
		if got == nil || got.Status != c.want {
			t.Fatalf("%s: expected %s, got %+v", c.jobType, c.want, got)
		}
		if c.want == types.StatusFailed && got.AvailableAt == nil {
			t.Fatalf("%s: expected available_at for retry", c.jobType)
		}
	}
}

func TestExecutor_RunByIDSkipsClaimedJob(t *testing.T) {
	exec, repo := newExecutor(t, funcHandler{jobType: "quiet", run: func(*runtime.Context) error { return nil }})
	id := seedJob(t, repo, "quiet")
	if _, err := exec.RunByID(context.Background(), id); err != nil {
		t.Fatalf("RunByID: %v", err)
	}
	got, err := exec.RunByID(context.Background(), id)
	if err != nil {
		t.Fatalf("second RunByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a finished job, got %s", got.Status)
	}
}

func TestExecutor_RunUntilTerminalRetriesFailures(t *testing.T) {
	var flakyRuns, brokenRuns int32
	exec, repo := newFastRetryExecutor(t,
		funcHandler{jobType: "flaky", run: func(*runtime.Context) error {
			if atomic.AddInt32(&flakyRuns, 1) == 1 {
				return errors.New("upstream timeout")
			}
			return nil
		}},
		funcHandler{jobType: "broken", run: func(*runtime.Context) error {
			atomic.AddInt32(&brokenRuns, 1)
			return errors.New("still down")
		}},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := exec.RunUntilTerminal(ctx, seedJob(t, repo, "flaky"))
	if err != nil {
		t.Fatalf("RunUntilTerminal: %v", err)
	}
	if got.Status != types.StatusSucceeded || got.Attempts != 2 || atomic.LoadInt32(&flakyRuns) != 2 {
		t.Fatalf("expected success on the second run, got status=%s attempts=%d runs=%d", got.Status, got.Attempts, flakyRuns)
	}

	got, err = exec.RunUntilTerminal(ctx, seedJob(t, repo, "broken"))
	if err != nil {
		t.Fatalf("RunUntilTerminal: %v", err)
	}
	if got.Status != types.StatusDead || atomic.LoadInt32(&brokenRuns) != 3 {
		t.Fatalf("expected dead after 3 runs, got status=%s runs=%d", got.Status, brokenRuns)
	}
}

func TestInlineDispatch_RetriesUntilSuccess(t *testing.T) {
	var runs int32
	exec, repo := newFastRetryExecutor(t, funcHandler{jobType: "strategy_batch", run: func(*runtime.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			return errors.New("chat provider timeout")
		}
		return nil
	}})
	log := testutil.Logger(t)
	svc := services.NewJobService(exec.db, log, repo, nil, nil, services.JobServiceConfig{Mode: services.DispatchInline})
	svc.SetInlineRunner(func(ctx context.Context, id uuid.UUID) error {
		_, err := exec.RunUntilTerminal(ctx, id)
		return err
	})

	job, err := svc.Enqueue(dbctx.Context{Ctx: context.Background()}, uuid.New(), "strategy_batch", "strategy_plan", nil, nil, services.EnqueueOptions{Delay: time.Minute})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if statusOf(t, repo, job.ID).Status == types.StatusSucceeded {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := statusOf(t, repo, job.ID)
	if got.Status != types.StatusSucceeded || got.Attempts != 2 || atomic.LoadInt32(&runs) != 2 {
		t.Fatalf("expected a retried success, got status=%s attempts=%d runs=%d", got.Status, got.Attempts, runs)
	}
}
