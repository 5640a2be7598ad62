package service

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
)

const (
	maxDepositorLength = 50
	maxMemoLength      = 500
	maxEmailLength     = 254
)

// PurchaseRequestService accepts manual bank-transfer requests.
// Requests never grant entitlements; an admin confirms them separately.
type PurchaseRequestService struct {
	requests PurchaseRequestStore
	catalog  *CatalogService
	notifier PurchaseNotifier
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewPurchaseRequestService creates a new PurchaseRequestService.
func NewPurchaseRequestService(requests PurchaseRequestStore, catalog *CatalogService, notifier PurchaseNotifier, logger *slog.Logger, recorder metrics.Recorder) *PurchaseRequestService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PurchaseRequestService{
		requests: requests,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.With("component", "service.purchase_request"),
		metrics:  recorder,
		now:      time.Now,
	}
}

// PurchaseRequestInput defines input for a bank-transfer request.
type PurchaseRequestInput struct {
	Depositor string
	Email     string
	Slug      string
	Memo      string
}

// Submit validates and stores a request, then notifies the operators.
// Notification problems are logged and never fail the submission.
func (s *PurchaseRequestService) Submit(ctx context.Context, input PurchaseRequestInput) (*model.PurchaseRequest, error) {
	input.Depositor = strings.TrimSpace(input.Depositor)
	input.Email = strings.TrimSpace(input.Email)
	input.Slug = strings.TrimSpace(input.Slug)
	input.Memo = strings.TrimSpace(input.Memo)
	if err := validatePurchaseRequest(input); err != nil {
		return nil, err
	}

	book, err := s.catalog.GetBook(ctx, input.Slug)
	if err != nil {
		return nil, err
	}

	req := &model.PurchaseRequest{
		ID:        ulid.Make().String(),
		Depositor: input.Depositor,
		Email:     input.Email,
		BookSlug:  book.Slug,
		Memo:      input.Memo,
		CreatedAt: s.now().UTC(),
	}
	if err := s.requests.CreatePurchaseRequest(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncPurchaseRequest()
	s.logger.Info("purchase_request_received", "request_id", req.ID, "slug", req.BookSlug)

	if err := s.notifier.NotifyPurchaseRequest(ctx, req, book.Title); err != nil {
		s.logger.Error("purchase request notification lost", "request_id", req.ID, "error", err)
	}
	return req, nil
}

// PurchaseRequestPage is one page of the bank-transfer inbox.
type PurchaseRequestPage struct {
	Items      []*model.PurchaseRequest
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// List returns purchase requests newest first.
func (s *PurchaseRequestService) List(ctx context.Context, page, limit int) (*PurchaseRequestPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = 50
	}
	items, total, err := s.requests.ListPurchaseRequests(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return &PurchaseRequestPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func validatePurchaseRequest(input PurchaseRequestInput) error {
	if n := utf8.RuneCountInString(input.Depositor); n == 0 || n > maxDepositorLength {
		return invalid("depositor", "is required")
	}
	if input.Email == "" || len(input.Email) > maxEmailLength {
		return invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	if input.Slug == "" {
		return invalid("slug", "is required")
	}
	if utf8.RuneCountInString(input.Memo) > maxMemoLength {
		return invalid("memo", "is too long")
	}
	return nil
}
