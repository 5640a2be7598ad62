package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/careerbooks/careerbooks/internal/service"
)

func TestHandler_Ping(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()

	h.Ping(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["message"] != "pong" {
		t.Errorf("unexpected message: %s", response["message"])
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	h.NotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["error"] != "resource not found" || response["code"] != "NOT_FOUND" {
		t.Errorf("unexpected error body: %v", response)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	h.MethodNotAllowed(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestHandleServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrapped: %w", service.ErrValidation), http.StatusBadRequest, "VALIDATION"},
		{service.ErrDuplicateHandle, http.StatusConflict, "DUPLICATE_HANDLE"},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{service.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{service.ErrBookNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrSlugExists, http.StatusConflict, "SLUG_EXISTS"},
		{service.ErrTitleIndexExists, http.StatusConflict, "TITLE_INDEX_EXISTS"},
		{service.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
		{service.ErrNotEntitled, http.StatusForbidden, "NOT_ENTITLED"},
		{service.ErrEntitlementExpired, http.StatusForbidden, "ENTITLEMENT_EXPIRED"},
		{fmt.Errorf("%w: smtp down", service.ErrUpstream), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, logger, tt.err)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["code"] != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, body["code"])
			}
		})
	}
}

func TestHandleServiceError_HidesInternalDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	handleServiceError(rec, logger, errors.New("pq: password authentication failed for user admin"))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "An internal error occurred" {
		t.Errorf("internal error leaked: %s", body["error"])
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"frontend01.zip", `attachment; filename=frontend01.zip`},
		{"", "attachment"},
		{"면접 가이드.pdf", `attachment; filename*=utf-8''%EB%A9%B4%EC%A0%91%20%EA%B0%80%EC%9D%B4%EB%93%9C.pdf`},
	}

	for _, tt := range tests {
		if got := contentDisposition(tt.name); got != tt.want {
			t.Errorf("contentDisposition(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
