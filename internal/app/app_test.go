package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/contentplan-backend/internal/data/db"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/services"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.LogMode = "production"
	cfg.DB = db.Config{Driver: db.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "app.db")}
	cfg.Redis.Addr = ""
	return cfg
}

func TestAppServesPlanAPI(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), Options{RunServer: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Server == nil || a.Services.JobWorker != nil {
		t.Fatalf("expected server only")
	}
	if _, ok := a.Services.JobRegistry.Get(services.JobTypeStrategyBatch); !ok {
		t.Fatalf("strategy batch handler not registered")
	}

	w := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthcheck status=%d body=%s", w.Code, w.Body.String())
	}

	body := `{"brand_id":"` + uuid.NewString() + `","owner_user_id":"` + uuid.NewString() + `","brand_name":"Acme","month":"2025-03","frequency_per_week":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/strategy-plans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Plan struct {
			ID uuid.UUID `json:"id"`
		} `json:"plan"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	jobs, err := a.Repos.JobRun.ListByEntity(dbctx.Background(), services.EntityStrategyPlan, out.Plan.ID)
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobType != services.JobTypeStrategyBatch {
		t.Fatalf("expected one queued strategy batch, got %d", len(jobs))
	}

	w = httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "contentplan_api_requests_total") {
		t.Fatalf("metrics status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestAppRunRequiresSomethingToHost(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected error with no server or worker")
	}
}
