package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_SetStatusAndCode(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		code   string
	}{
		{BadRequest(CodeInvalidBrand, nil), http.StatusBadRequest, CodeInvalidBrand},
		{NotFound(CodePlanNotFound, errors.New("plan not found")), http.StatusNotFound, CodePlanNotFound},
		{Conflict(CodePlanExists, errors.New("exists")), http.StatusConflict, CodePlanExists},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status || tc.err.Code != tc.code {
			t.Fatalf("got %d/%s, want %d/%s", tc.err.Status, tc.err.Code, tc.status, tc.code)
		}
		if tc.err.Error() == "" {
			t.Fatalf("%s: empty message", tc.code)
		}
	}
	if got := BadRequest(CodeInvalidBrand, nil).Error(); got != CodeInvalidBrand {
		t.Fatalf("nil cause should fall back to the code, got %q", got)
	}
}

func TestAs_FindsWrappedErrors(t *testing.T) {
	cause := errors.New("plan has no weekly plan yet")
	wrapped := fmt.Errorf("run creator: %w", Conflict(CodePlanNotReady, cause))

	ae, ok := As(wrapped)
	if !ok || ae.Code != CodePlanNotReady || ae.Status != http.StatusConflict {
		t.Fatalf("expected plan_not_ready conflict, got %+v ok=%v", ae, ok)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("cause should stay reachable through Unwrap")
	}
	if _, ok := As(errors.New("boom")); ok {
		t.Fatalf("untyped errors should not match")
	}
	if _, ok := As(&Error{Code: "x"}); ok {
		t.Fatalf("errors without a status should not match")
	}
}
