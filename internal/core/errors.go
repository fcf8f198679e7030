// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Conversion errors
	ErrDecodeFailed = &Error{Code: "DECODE_FAILED", Message: "image could not be decoded"}
	ErrFilesystem   = &Error{Code: "FILESYSTEM_ERROR", Message: "filesystem operation failed"}

	// Upload errors
	ErrInvalidUpload     = &Error{Code: "INVALID_UPLOAD", Message: "invalid upload"}
	ErrUnsupportedFormat = &Error{Code: "UNSUPPORTED_FORMAT", Message: "unsupported image format"}

	// Lookup errors
	ErrNotFound     = &Error{Code: "NOT_FOUND", Message: "conversion output not found"}
	ErrJobNotFound  = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrJobStoreFull = &Error{Code: "JOB_STORE_FULL", Message: "too many conversions in progress"}

	// Access errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Delivery errors
	ErrPublishFailed = &Error{Code: "PUBLISH_FAILED", Message: "bundle publish failed"}
	ErrNotifyFailed  = &Error{Code: "NOTIFY_FAILED", Message: "notification failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
