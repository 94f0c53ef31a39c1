package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := Conflict("Bed %s is not available (current status: %s)", "BED-014", "occupied")
	wrapped := fmt.Errorf("approve: %w", base)

	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("KindOf = %q, want %q", got, KindConflict)
	}
	if !Is(wrapped, KindConflict) {
		t.Error("expected Is(conflict) to be true")
	}
	if base.Error() != "Bed BED-014 is not available (current status: occupied)" {
		t.Errorf("unexpected message %q", base.Error())
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf(plain) = %q, want internal", got)
	}
	if Is(nil, KindInternal) {
		t.Error("nil error must not match any kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindNotFound:          http.StatusNotFound,
		KindPermission:        http.StatusForbidden,
		KindConflict:          http.StatusConflict,
		KindInvalidTransition: http.StatusConflict,
		KindNoCapacity:        http.StatusConflict,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestToHTTP_HidesInternalCause(t *testing.T) {
	he := ToHTTP(Internal("load bed", errors.New("connection refused")))
	if he.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", he.Code)
	}
	body, ok := he.Message.(Body)
	if !ok {
		t.Fatalf("message type %T", he.Message)
	}
	if body.Message != "internal server error" {
		t.Errorf("internal cause leaked: %q", body.Message)
	}
}

func TestToHTTP_Validation(t *testing.T) {
	he := ToHTTP(fmt.Errorf("create: %w", Validation("patient name is required")))
	if he.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", he.Code)
	}
	body := he.Message.(Body)
	if body.Error != KindValidation || body.Message != "patient name is required" {
		t.Errorf("unexpected body %+v", body)
	}
}
