package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/storage"
)

// DownloadGrant is the outcome of a successful authorization.
type DownloadGrant struct {
	Book *model.Book
	// Auth is nil for the free sample.
	Auth *model.AuthContext
	Free bool
}

// DownloadService decides whether a caller may download a book and locates the file.
type DownloadService struct {
	tokens       TokenParser
	catalog      *CatalogService
	entitlements EntitlementStore
	files        FileLocator
	freeSlug     string
	logger       *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewDownloadService creates a new DownloadService.
func NewDownloadService(tokens TokenParser, catalog *CatalogService, entitlements EntitlementStore, files FileLocator, freeSlug string, logger *slog.Logger, recorder metrics.Recorder) *DownloadService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &DownloadService{
		tokens:       tokens,
		catalog:      catalog,
		entitlements: entitlements,
		files:        files,
		freeSlug:     freeSlug,
		logger:       logger.With("component", "service.download"),
		metrics:      recorder,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *DownloadService) WithClock(now func() time.Time) *DownloadService {
	s.now = now
	return s
}

// Authorize runs the download checks in order: free sample, token, book,
// entitlement, then the one-year window. It never mutates state.
func (s *DownloadService) Authorize(ctx context.Context, slug, token string) (*DownloadGrant, error) {
	if s.freeSlug != "" && slug == s.freeSlug {
		book, err := s.catalog.GetBook(ctx, slug)
		if err != nil {
			return nil, s.deny(slug, err)
		}
		return &DownloadGrant{Book: book, Free: true}, nil
	}

	if token == "" {
		return nil, s.deny(slug, ErrUnauthenticated)
	}
	authCtx, err := s.tokens.Parse(token)
	if err != nil {
		return nil, s.deny(slug, ErrUnauthenticated)
	}

	book, err := s.catalog.GetBook(ctx, slug)
	if err != nil {
		return nil, s.deny(slug, err)
	}

	ent, err := s.entitlements.GetEntitlement(ctx, authCtx.UserID, book.Slug)
	if err != nil {
		if errors.Is(err, repository.ErrEntitlementNotFound) {
			return nil, s.deny(slug, ErrNotEntitled)
		}
		return nil, err
	}

	if ent.IsExpiredAt(s.now()) {
		s.logger.Info("download_expired",
			"user_id", authCtx.UserID,
			"slug", slug,
			"expired_at", ent.ExpiresAt(),
		)
		return nil, s.deny(slug, ErrEntitlementExpired)
	}

	return &DownloadGrant{Book: book, Auth: authCtx}, nil
}

// Resolve authorizes the download and locates the file.
// The caller must close FileLocation.Body when it is set.
func (s *DownloadService) Resolve(ctx context.Context, slug, token string) (*storage.FileLocation, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDownloadDuration(time.Since(start))
	}()

	grant, err := s.Authorize(ctx, slug, token)
	if err != nil {
		return nil, err
	}

	loc, err := s.files.Locate(ctx, grant.Book)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNoFile):
			s.logger.Error("book has no file", "slug", slug)
			s.metrics.IncDownload(metrics.DownloadNotFound)
			return nil, ErrNoFile
		case errors.Is(err, storage.ErrUpstream):
			s.logger.Warn("file host failed", "slug", slug, "error", err)
			s.metrics.IncDownload(metrics.DownloadUpstreamError)
			return nil, ErrUpstream
		default:
			return nil, err
		}
	}

	outcome := metrics.DownloadAuthorized
	userID := ""
	if grant.Free {
		outcome = metrics.DownloadFree
	} else {
		userID = grant.Auth.UserID
	}
	s.metrics.IncDownload(outcome)
	s.logger.Info("download_authorized",
		"slug", slug,
		"user_id", userID,
		"free", grant.Free,
		"redirect", loc.RedirectURL != "",
	)
	return loc, nil
}

// deny records the outcome for err and returns it.
func (s *DownloadService) deny(slug string, err error) error {
	outcome := ""
	switch {
	case errors.Is(err, ErrUnauthenticated):
		outcome = metrics.DownloadUnauthenticated
	case errors.Is(err, ErrBookNotFound):
		outcome = metrics.DownloadNotFound
	case errors.Is(err, ErrNotEntitled):
		outcome = metrics.DownloadNotEntitled
	case errors.Is(err, ErrEntitlementExpired):
		outcome = metrics.DownloadExpired
	}
	if outcome != "" {
		s.metrics.IncDownload(outcome)
		s.logger.Debug("download_denied", "slug", slug, "outcome", outcome)
	}
	return err
}
