package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	types "github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/platform/ctxutil"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/services"
)

/*
Context is the execution handle for a single job run.
It wraps:
	- The database handle,
	- The mutable job_run row,
	- The notification side-effects,
	- The retry policy the run was claimed under.
Handlers never touch job_run directly. They report through Progress, Fail and Succeed.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   jobrepo.JobRunRepo
	Notify services.JobNotifier
	Policy RetryPolicy

	payload    map[string]any
	payloadErr error
	now        func() time.Time
}

// NewContext decodes the job payload eagerly; a malformed payload is kept as
// an empty map and reported by DecodePayload.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepo.JobRunRepo, notify services.JobNotifier, policy RetryPolicy) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
		Policy: policy.WithDefaults(),
		now:    time.Now,
	}
	c.payloadErr = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID, _ := payload["trace_id"].(string)
	reqID, _ := payload["request_id"].(string)
	traceID, reqID = strings.TrimSpace(traceID), strings.TrimSpace(reqID)
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// DecodePayload unmarshals the raw job payload into out.
func (c *Context) DecodePayload(out any) error {
	if c.payloadErr != nil {
		return fmt.Errorf("decode payload: %w", c.payloadErr)
	}
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("decode payload: empty")
	}
	if err := json.Unmarshal(c.Job.Payload, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Attempt is the 1-based attempt number of this run.
func (c *Context) Attempt() int {
	if c.Job == nil || c.Job.Attempts < 1 {
		return 1
	}
	return c.Job.Attempts
}

// LastAttempt reports whether a failure now would exhaust the retry budget.
func (c *Context) LastAttempt() bool {
	return c.Attempt() >= c.Policy.MaxAttempts
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) update(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.context()}, c.Job.ID, []string{types.StatusCanceled}, updates)
	return err == nil && ok
}

// Progress persists a non-terminal stage and notifies listeners.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := c.now().UTC()
	if !c.update(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

/*
Fail records err against the run.
	- Permanent errors and exhausted attempts move the job to dead.
	- Anything else leaves it failed with available_at pushed out by the
	  policy's exponential backoff, so ClaimNextRunnable picks it up again.
A canceled job is never overwritten.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := c.now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	status := types.StatusFailed
	var availableAt *time.Time
	if IsPermanent(err) || c.LastAttempt() {
		status = types.StatusDead
	} else {
		at := now.Add(c.Policy.Backoff(c.Attempt()))
		availableAt = &at
	}

	if !c.update(map[string]interface{}{
		"status":        status,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"available_at":  availableAt,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = status
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.AvailableAt = availableAt
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := c.now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if !c.update(map[string]interface{}{
		"status":       types.StatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}

// Heartbeat keeps a long run from being reclaimed as stale.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.context()}, c.Job.ID)
}
