package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaxBody(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	req := httptest.NewRequest("POST", "/convert", strings.NewReader(strings.Repeat("x", 100)))
	MaxBody(10)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("expected MaxBytesError, got %v", readErr)
	}
}

func TestMaxBody_Disabled(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	req := httptest.NewRequest("POST", "/convert", strings.NewReader(strings.Repeat("x", 100)))
	MaxBody(0)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if readErr != nil {
		t.Errorf("expected no error, got %v", readErr)
	}
}
