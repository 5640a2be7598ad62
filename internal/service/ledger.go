package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
)

// Grant sources recorded in metrics and logs.
const (
	GrantSourcePurchase = "purchase"
	GrantSourceAdmin    = "admin"
)

// LedgerService owns the entitlement ledger.
type LedgerService struct {
	entitlements EntitlementStore
	cache        BookCache
	logger       *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(entitlements EntitlementStore, bookCache BookCache, logger *slog.Logger, recorder metrics.Recorder) *LedgerService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &LedgerService{
		entitlements: entitlements,
		cache:        bookCache,
		logger:       logger.With("component", "service.ledger"),
		metrics:      recorder,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// HasEntitlement reports whether the user ever acquired the book, regardless of age.
func (s *LedgerService) HasEntitlement(ctx context.Context, userID, slug string) (bool, error) {
	_, err := s.entitlements.GetEntitlement(ctx, userID, slug)
	if err != nil {
		if errors.Is(err, repository.ErrEntitlementNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Grant records that the user acquired the book now and bumps its sales count.
// A second grant for the same pair returns ErrAlreadyOwned and changes nothing.
func (s *LedgerService) Grant(ctx context.Context, userID, slug, source string) (*model.Entitlement, error) {
	ent, err := s.entitlements.GrantEntitlement(ctx, userID, slug, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEntitlementExists):
			s.metrics.IncGrantConflict()
			return nil, ErrAlreadyOwned
		case errors.Is(err, repository.ErrBookNotFound):
			return nil, ErrBookNotFound
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		default:
			return nil, err
		}
	}

	s.metrics.IncEntitlementGranted(source)
	s.logger.Info("entitlement_granted",
		"user_id", userID,
		"slug", slug,
		"source", source,
	)

	// Sales counts changed; cached copies are stale.
	if err := s.cache.DeleteBook(ctx, slug); err != nil {
		s.logger.Warn("book cache invalidation failed", "slug", slug, "error", err)
	}
	if err := s.cache.InvalidatePopular(ctx); err != nil {
		s.logger.Warn("popular cache invalidation failed", "error", err)
	}

	return ent, nil
}

// ListPurchases returns the user's books with their download windows.
func (s *LedgerService) ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	purchases, err := s.entitlements.ListPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range purchases {
		ent := model.Entitlement{AcquiredAt: purchases[i].AcquiredAt}
		purchases[i].ExpiresAt = ent.ExpiresAt()
		purchases[i].Expired = ent.IsExpiredAt(now)
	}
	return purchases, nil
}
