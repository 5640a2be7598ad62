package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careerbooks/careerbooks/internal/service"
	"github.com/careerbooks/careerbooks/internal/storage"
)

// DownloadHandler serves ebook files behind the download authorizer.
type DownloadHandler struct {
	svc    *service.DownloadService
	logger *slog.Logger
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(svc *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		svc:    svc,
		logger: logger,
	}
}

// Download handles GET /downloads/{slug}.
// The session token may come from the Authorization header or the token
// query parameter, since browsers follow download links without headers.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	loc, err := h.svc.Resolve(r.Context(), slug, tokenFromRequest(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if loc.RedirectURL != "" {
		http.Redirect(w, r, loc.RedirectURL, http.StatusFound)
		return
	}
	h.stream(w, slug, loc)
}

// stream copies a proxied file to the client. The server write timeout is
// lifted for this response; the file store aborts a stalled host instead.
func (h *DownloadHandler) stream(w http.ResponseWriter, slug string, loc *storage.FileLocation) {
	defer loc.Body.Close()

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("could not lift write deadline", "slug", slug, "error", err)
	}

	contentType := loc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(loc.FileName))
	if loc.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(loc.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, loc.Body); err != nil {
		h.logger.Warn("download stream interrupted", "slug", slug, "error", err)
	}
}

// tokenFromRequest extracts a bearer token from the header, falling back to ?token=.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// contentDisposition builds an attachment header. Non-ASCII names are
// encoded per RFC 2231 by mime.FormatMediaType.
func contentDisposition(name string) string {
	if name == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
