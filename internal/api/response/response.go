// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/newthinker/dzibridge/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: Detail(err)}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Fail writes an error response with the status StatusFor picks.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// Detail extracts the client-facing parts of err.
func Detail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return detail
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidUpload):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedFormat), errors.Is(err, core.ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrJobStoreFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Attachment serves content as a download named fileName.
func Attachment(w http.ResponseWriter, r *http.Request, fileName, contentType string, content io.ReadSeeker) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	http.ServeContent(w, r, fileName, time.Time{}, content)
}
