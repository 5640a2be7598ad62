// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/careerbooks/careerbooks/internal/handler/dto"
	"github.com/careerbooks/careerbooks/internal/service"
)

// Version is reported by the ping endpoint.
const Version = "1.0.0"

// Handler serves the endpoints that have no domain dependencies.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Ping is a liveness endpoint for the storefront client.
// GET /api/ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "pong",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON reads a JSON body into dst. An empty body is an error.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleServiceError maps service errors to HTTP responses.
// Unexpected errors are logged and reported without details.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "VALIDATION", ve.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION", "Invalid request")
	case errors.Is(err, service.ErrDuplicateHandle):
		writeError(w, http.StatusConflict, "DUPLICATE_HANDLE", "User ID is already taken")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user ID or password")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Login required")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
	case errors.Is(err, service.ErrNoFile):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Book file is not available")
	case errors.Is(err, service.ErrSlugExists):
		writeError(w, http.StatusConflict, "SLUG_EXISTS", "Slug already exists")
	case errors.Is(err, service.ErrTitleIndexExists):
		writeError(w, http.StatusConflict, "TITLE_INDEX_EXISTS", "Title index already exists")
	case errors.Is(err, service.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, "ALREADY_OWNED", "Book already purchased")
	case errors.Is(err, service.ErrNotEntitled):
		writeError(w, http.StatusForbidden, "NOT_ENTITLED", "Purchase required to download this book")
	case errors.Is(err, service.ErrEntitlementExpired):
		writeError(w, http.StatusForbidden, "ENTITLEMENT_EXPIRED", "Download period has ended, purchase required")
	case errors.Is(err, service.ErrUpstream):
		logger.Warn("upstream_failure", "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_FAILURE", "Upstream service unavailable")
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
