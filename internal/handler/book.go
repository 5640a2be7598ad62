package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/handler/dto"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/service"
)

// BookHandler serves the catalog and the caller's purchases.
type BookHandler struct {
	catalog *service.CatalogService
	ledger  *service.LedgerService
	logger  *slog.Logger
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(catalog *service.CatalogService, ledger *service.LedgerService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		catalog: catalog,
		ledger:  ledger,
		logger:  logger,
	}
}

// List handles GET /books.
// Without a page parameter every matching book is returned.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION", "page must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION", "limit must be a non-negative integer")
		return
	}

	result, err := h.catalog.ListBooks(r.Context(), service.ListBooksInput{
		Category: r.URL.Query().Get("category"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBookListResponse(result, page > 0))
}

// ListByCategory handles GET /books/category/{category}.
func (h *BookHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.ListBooks(r.Context(), service.ListBooksInput{
		Category: chi.URLParam(r, "category"),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBookListResponse(result, false))
}

// Popular handles GET /books/popular.
func (h *BookHandler) Popular(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.PopularBooks(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBookItems(books))
}

// Get handles GET /books/{slug}.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.GetBook(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBookResponse(book))
}

// Description handles GET /books/{slug}/description.
func (h *BookHandler) Description(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	content, err := h.catalog.GetDescription(r.Context(), slug)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DescriptionResponse{Slug: slug, Content: content})
}

// Access handles GET /books/{slug}/access.
func (h *BookHandler) Access(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		handleServiceError(w, h.logger, service.ErrUnauthenticated)
		return
	}

	allowed, err := h.ledger.HasEntitlement(r.Context(), authCtx.UserID, chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccessResponse{Allowed: allowed})
}

// Purchase handles POST /books/{slug}/purchase.
func (h *BookHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		handleServiceError(w, h.logger, service.ErrUnauthenticated)
		return
	}

	ent, err := h.ledger.Grant(r.Context(), authCtx.UserID, chi.URLParam(r, "slug"), service.GrantSourcePurchase)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PurchaseResponse{
		Message:     "Purchase completed",
		Entitlement: ent,
	})
}

// MyPurchases handles GET /books/my-purchases.
func (h *BookHandler) MyPurchases(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		handleServiceError(w, h.logger, service.ErrUnauthenticated)
		return
	}

	purchases, err := h.ledger.ListPurchases(r.Context(), authCtx.UserID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if purchases == nil {
		purchases = []model.Purchase{}
	}
	writeJSON(w, http.StatusOK, dto.PurchaseListResponse{Items: purchases})
}

// Slides handles GET /slides.
func (h *BookHandler) Slides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.SlideListResponse{Items: h.catalog.Slides()})
}
