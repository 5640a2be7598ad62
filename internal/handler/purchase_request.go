package handler

import (
	"log/slog"
	"net/http"

	"github.com/careerbooks/careerbooks/internal/handler/dto"
	"github.com/careerbooks/careerbooks/internal/service"
)

// PurchaseRequestHandler accepts manual bank-transfer requests.
type PurchaseRequestHandler struct {
	svc    *service.PurchaseRequestService
	logger *slog.Logger
}

// NewPurchaseRequestHandler creates a new PurchaseRequestHandler.
func NewPurchaseRequestHandler(svc *service.PurchaseRequestService, logger *slog.Logger) *PurchaseRequestHandler {
	return &PurchaseRequestHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /purchase-requests.
// The response is 201 whether or not the operators could be notified.
func (h *PurchaseRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body dto.PurchaseRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	req, err := h.svc.Submit(r.Context(), service.PurchaseRequestInput{
		Depositor: body.Depositor,
		Email:     body.Email,
		Slug:      body.Slug,
		Memo:      body.Memo,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PurchaseRequestCreated{
		ID:      req.ID,
		Message: "입금 확인 후 전자책이 발송됩니다.",
	})
}
