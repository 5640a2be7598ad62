package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/careerbooks/careerbooks/internal/mail"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/storage"
)

// EbookMailer sends ebooks by email.
type EbookMailer interface {
	Configured() bool
	WantsAttachment(size int64) bool
	SendEbook(ctx context.Context, e mail.Ebook) error
}

// AdminService covers operator actions outside catalog editing.
type AdminService struct {
	users      UserStore
	ledger     *LedgerService
	catalog    *CatalogService
	files      FileLocator
	mailer     EbookMailer
	deliveries DeliveryLister
	logger     *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(users UserStore, ledger *LedgerService, catalog *CatalogService, files FileLocator, mailer EbookMailer, deliveries DeliveryLister, logger *slog.Logger) *AdminService {
	return &AdminService{
		users:      users,
		ledger:     ledger,
		catalog:    catalog,
		files:      files,
		mailer:     mailer,
		deliveries: deliveries,
		logger:     logger.With("component", "service.admin"),
	}
}

// ListUsers returns all accounts with their entitlements. Hashes are never serialized.
func (s *AdminService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.users.ListUsers(ctx)
}

// ConfirmPurchase grants a book to the user with the given handle after a
// bank transfer has been reconciled.
func (s *AdminService) ConfirmPurchase(ctx context.Context, handle, slug string) (*model.Entitlement, error) {
	handle = strings.TrimSpace(handle)
	slug = strings.TrimSpace(slug)
	if handle == "" || slug == "" {
		return nil, invalid("userId", "user ID and slug are required")
	}

	user, err := s.users.GetUserByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	ent, err := s.ledger.Grant(ctx, user.ID, slug, GrantSourceAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("purchase_confirmed", "handle", handle, "slug", slug)
	return ent, nil
}

// SendEbook emails a book to an address. The file is attached when it can be
// opened and fits the size cap; the download link is always included.
func (s *AdminService) SendEbook(ctx context.Context, email, slug string) error {
	email = strings.TrimSpace(email)
	if err := validatePurchaseRequest(PurchaseRequestInput{Depositor: "-", Email: email, Slug: slug}); err != nil {
		return err
	}
	if !s.mailer.Configured() {
		return fmt.Errorf("%w: %v", ErrUpstream, mail.ErrNotConfigured)
	}

	book, err := s.catalog.GetBook(ctx, slug)
	if err != nil {
		return err
	}

	link, err := s.files.LinkFor(ctx, book)
	if err != nil {
		if errors.Is(err, storage.ErrNoFile) {
			return ErrNoFile
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	ebook := mail.Ebook{
		To:       email,
		Title:    book.Title,
		Slug:     book.Slug,
		Link:     link,
		FileName: book.DownloadName(),
	}
	if !book.HasRemoteFile() {
		ebook.LinkExpiresIn = storage.LinkTTL
	}

	if loc, err := s.files.Open(ctx, book); err != nil {
		s.logger.Warn("attachment unavailable, sending link only", "slug", slug, "error", err)
	} else {
		defer loc.Body.Close()
		if s.mailer.WantsAttachment(loc.ContentLength) {
			ebook.Attachment = io.LimitReader(loc.Body, loc.ContentLength)
			ebook.Size = loc.ContentLength
		}
	}

	if err := s.mailer.SendEbook(ctx, ebook); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	s.logger.Info("ebook_sent", "slug", slug, "attached", ebook.Attachment != nil)
	return nil
}

// ListNotifications returns queued purchase-request notifications.
func (s *AdminService) ListNotifications(ctx context.Context, statuses []string, limit int) ([]*model.NotificationDelivery, error) {
	for _, st := range statuses {
		switch model.DeliveryStatus(st) {
		case model.DeliveryStatusPending, model.DeliveryStatusSuccess,
			model.DeliveryStatusFailed, model.DeliveryStatusExhausted:
		default:
			return nil, invalid("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = 50
	}
	return s.deliveries.ListDeliveries(ctx, statuses, limit)
}
