// Package apperr tests for coded application errors.
package apperr

import (
	"errors"
	"strings"
	"testing"
)

// TestNew tests creating an error without a cause.
func TestNew(t *testing.T) {
	err := New(ErrSyncFailed, "sync cycle failed")

	if err.Code != ErrSyncFailed {
		t.Errorf("Code = %s, want %s", err.Code, ErrSyncFailed)
	}
	if !strings.Contains(err.Error(), "SYNC_FAILED") {
		t.Errorf("Error() = %q, expected code in message", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("expected nil Unwrap for error without cause")
	}
}

// TestWrap tests wrapping an underlying error.
func TestWrap(t *testing.T) {
	cause := errors.New("disk io error")
	err := Wrap(ErrStorage, "failed to persist location", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match wrapped cause")
	}
	if !strings.Contains(err.Error(), "disk io error") {
		t.Errorf("Error() = %q, expected cause in message", err.Error())
	}
}

// TestIs tests code matching.
func TestIs(t *testing.T) {
	err := New(ErrSyncAuthFailed, "token expired")

	if !Is(err, ErrSyncAuthFailed) {
		t.Error("Is() should match the error code")
	}
	if Is(err, ErrSyncRateLimited) {
		t.Error("Is() should not match a different code")
	}
	if Is(errors.New("plain"), ErrSyncAuthFailed) {
		t.Error("Is() should not match a non-AppError")
	}
}
