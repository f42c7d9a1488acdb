package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes returned in the error envelope of the plan API.
const (
	CodeInvalidPlan  = "invalid_plan"
	CodeInvalidBrand = "invalid_brand"
	CodePlanNotFound = "plan_not_found"
	CodePlanExists   = "plan_exists"
	CodePlanNotReady = "plan_not_ready"
)

// Error carries the HTTP status and machine code a service wants the caller
// to see. Err holds the human message.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	if err == nil {
		err = errors.New(code)
	}
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code string, err error) *Error { return New(http.StatusBadRequest, code, err) }
func NotFound(code string, err error) *Error   { return New(http.StatusNotFound, code, err) }
func Conflict(code string, err error) *Error   { return New(http.StatusConflict, code, err) }

// As finds an *Error with a status in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae, true
	}
	return nil, false
}
