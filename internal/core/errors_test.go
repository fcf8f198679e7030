// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	err := WrapError(ErrDecodeFailed, errors.New("bad header"))
	want := "[DECODE_FAILED] image could not be decoded: bad header"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("same error should match")
	}
	if errors.Is(ErrNotFound, ErrJobNotFound) {
		t.Error("different codes should not match")
	}
}

func TestError_IsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("converting photo.png: %w", WrapError(ErrFilesystem, errors.New("read-only")))
	if !errors.Is(err, ErrFilesystem) {
		t.Error("expected code match through fmt wrapping")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrPublishFailed, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrPublishFailed.Code {
		t.Error("code not preserved")
	}
}
