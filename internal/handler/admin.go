package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/handler/dto"
	"github.com/careerbooks/careerbooks/internal/service"
)

// AdminHandler provides operator endpoints. Routes must sit behind RequireAdmin.
type AdminHandler struct {
	catalog  *service.CatalogService
	admin    *service.AdminService
	requests *service.PurchaseRequestService
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(catalog *service.CatalogService, admin *service.AdminService, requests *service.PurchaseRequestService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		catalog:  catalog,
		admin:    admin,
		requests: requests,
		logger:   logger,
	}
}

// ListBooks handles GET /admin/books.
func (h *AdminHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.ListBooks(r.Context(), service.ListBooksInput{})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToAdminBookList(result.Items))
}

// CreateBook handles POST /admin/books.
func (h *AdminHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeBook(w, r)
	if !ok {
		return
	}

	book, err := h.catalog.CreateBook(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.audit(r, "admin_book_created", "slug", book.Slug)
	writeJSON(w, http.StatusCreated, dto.AdminBook{Book: book, FileRef: book.FileRef})
}

// UpdateBook handles PUT /admin/books/{slug}.
func (h *AdminHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeBook(w, r)
	if !ok {
		return
	}
	slug := chi.URLParam(r, "slug")

	book, err := h.catalog.UpdateBook(r.Context(), slug, input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.audit(r, "admin_book_updated", "slug", slug, "new_slug", book.Slug)
	writeJSON(w, http.StatusOK, dto.AdminBook{Book: book, FileRef: book.FileRef})
}

// DeleteBook handles DELETE /admin/books/{slug}.
func (h *AdminHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.catalog.DeleteBook(r.Context(), slug); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.audit(r, "admin_book_deleted", "slug", slug)
	w.WriteHeader(http.StatusNoContent)
}

// PutDescription handles PUT /admin/books/{slug}/description.
func (h *AdminHandler) PutDescription(w http.ResponseWriter, r *http.Request) {
	var req dto.DescriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	slug := chi.URLParam(r, "slug")

	if err := h.catalog.PutDescription(r.Context(), slug, req.Content); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DescriptionResponse{Slug: slug, Content: req.Content})
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UserListResponse{Items: users})
}

// ListPurchaseRequests handles GET /admin/purchase-requests?page=&limit=.
func (h *AdminHandler) ListPurchaseRequests(w http.ResponseWriter, r *http.Request) {
	page, okPage := queryInt(r, "page")
	limit, okLimit := queryInt(r, "limit")
	if !okPage || !okLimit {
		writeError(w, http.StatusBadRequest, "VALIDATION", "page and limit must be non-negative integers")
		return
	}

	result, err := h.requests.List(r.Context(), page, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PurchaseRequestListResponse{
		Items: result.Items,
		Pagination: &dto.Pagination{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	})
}

// ListNotifications handles GET /admin/notifications?status=failed,exhausted.
func (h *AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION", "limit must be a non-negative integer")
		return
	}

	var statuses []string
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	deliveries, err := h.admin.ListNotifications(r.Context(), statuses, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NotificationListResponse{Items: deliveries})
}

// ConfirmPurchase handles POST /admin/confirm-purchase.
func (h *AdminHandler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	ent, err := h.admin.ConfirmPurchase(r.Context(), req.UserID, req.Slug)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.audit(r, "admin_purchase_confirmed", "handle", req.UserID, "slug", req.Slug)
	writeJSON(w, http.StatusOK, dto.PurchaseResponse{
		Message:     "Purchase confirmed",
		Entitlement: ent,
	})
}

// SendEbook handles POST /admin/send-ebook.
func (h *AdminHandler) SendEbook(w http.ResponseWriter, r *http.Request) {
	var req dto.SendEbookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.admin.SendEbook(r.Context(), req.Email, req.Slug); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Ebook sent"})
}

func (h *AdminHandler) decodeBook(w http.ResponseWriter, r *http.Request) (service.BookInput, bool) {
	var req dto.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return service.BookInput{}, false
	}
	if req.TitleIndex == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "titleIndex: is required")
		return service.BookInput{}, false
	}

	return service.BookInput{
		Title:         req.Title,
		Slug:          req.Slug,
		Category:      req.Category,
		TitleIndex:    *req.TitleIndex,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		KmongURL:      req.KmongURL,
		FileRef:       req.FileRef,
		FileName:      req.FileName,
	}, true
}

// audit logs an admin mutation together with the acting admin.
func (h *AdminHandler) audit(r *http.Request, event string, args ...any) {
	if authCtx := auth.AuthFromContext(r.Context()); authCtx != nil {
		args = append(args, "admin", authCtx.Handle)
	}
	h.logger.Info(event, args...)
}
