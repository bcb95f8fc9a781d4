package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsAreDistinguishable(t *testing.T) {
	notFound := NotFound("camera %s not found", "c1")
	invalid := InvalidState("request is %s", "completed")
	denied := Unauthorized("caller is not the assigned provider")

	if !errors.Is(notFound, ErrNotFound) {
		t.Errorf("Expected NotFound to match ErrNotFound")
	}
	if errors.Is(notFound, ErrInvalidState) {
		t.Errorf("Expected NotFound not to match ErrInvalidState")
	}
	if !errors.Is(invalid, ErrInvalidState) {
		t.Errorf("Expected InvalidState to match ErrInvalidState")
	}
	if !errors.Is(denied, ErrUnauthorized) {
		t.Errorf("Expected Unauthorized to match ErrUnauthorized")
	}
	if notFound.Error() != "camera c1 not found" {
		t.Errorf("Unexpected message: %s", notFound.Error())
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	wrapped := fmt.Errorf("accept request: %w", InvalidState("request is not pending"))

	if !errors.Is(wrapped, ErrInvalidState) {
		t.Errorf("Expected wrapped error to match ErrInvalidState")
	}
	if KindOf(wrapped) != KindInvalidState {
		t.Errorf("Expected kind %s, got %s", KindInvalidState, KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Errorf("Expected foreign errors to be internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NotFound("x"), http.StatusNotFound},
		{InvalidState("x"), http.StatusConflict},
		{Unauthorized("x"), http.StatusForbidden},
		{Unauthenticated("x"), http.StatusUnauthorized},
		{InvalidArgument("x"), http.StatusBadRequest},
		{ErrChannelUninitialized, http.StatusServiceUnavailable},
		{Internal(errors.New("disk"), "storage failed"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v): expected %d, got %d", tt.err, tt.status, got)
		}
	}
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal(cause, "failed to save request")

	if !errors.Is(err, cause) {
		t.Errorf("Expected Internal to unwrap to its cause")
	}
	if err.Error() != "failed to save request: disk full" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
