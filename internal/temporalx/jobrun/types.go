package jobrun

import "time"

const (
	WorkflowName = "job_run"
	ActivityTick = "job_run_tick"
)

// TickResult is the job row's state after one activity tick. RetryAt is set
// when the job failed and is waiting out its backoff.
type TickResult struct {
	JobID    string     `json:"job_id"`
	Status   string     `json:"status"`
	Stage    string     `json:"stage,omitempty"`
	Attempts int        `json:"attempts,omitempty"`
	Error    string     `json:"error,omitempty"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
}
