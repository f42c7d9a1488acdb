package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
)

var (
	ErrPlanNotFound      = errors.New("strategy plan not found")
	ErrPlanNotReady      = errors.New("strategy plan is not ready for this phase")
	ErrBatchInFlight     = errors.New("batch already in flight")
	ErrWeekCountMismatch = errors.New("weekly_plan does not have the expected number of weeks")
	ErrUnknownPhase      = errors.New("unknown phase")
)

// StructuralError means the model response was not valid JSON.
type StructuralError struct {
	Phase   string
	Batch   int
	Snippet string
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s batch %d: response is not valid JSON: %v", e.Phase, e.Batch, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// ContractViolation means the response was valid JSON but lacked a key the
// phase requires.
type ContractViolation struct {
	Phase      string
	Batch      int
	MissingKey string
	Detail     string
}

func (e *ContractViolation) Error() string {
	msg := fmt.Sprintf("%s batch %d: response missing required key %q", e.Phase, e.Batch, e.MissingKey)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// PersistenceConflict wraps a row-level rejection of one item.
type PersistenceConflict struct {
	ContentID string
	Violation *dberr.Violation
}

func (e *PersistenceConflict) Error() string {
	return fmt.Sprintf("item %s: %v", e.ContentID, e.Violation)
}

func (e *PersistenceConflict) Unwrap() error { return e.Violation }

// QuantityShortfall describes items still missing after recovery.
type QuantityShortfall struct {
	Expected int
	Actual   int
	Missing  []string
}

func (e *QuantityShortfall) Error() string {
	return fmt.Sprintf("quantity shortfall: expected %d items, have %d (missing %s)", e.Expected, e.Actual, strings.Join(e.Missing, ","))
}

// UpstreamError is a failure of the chat collaborator itself.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat provider %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsFatal reports whether err must fail the plan without any job-level retry.
func IsFatal(err error) bool {
	var se *StructuralError
	var cv *ContractViolation
	return errors.As(err, &se) || errors.As(err, &cv) || errors.Is(err, ErrWeekCountMismatch)
}

func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
