package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/careerbooks/careerbooks/internal/cache"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
)

// Slug rule: lowercase letters, digits and hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// reservedSlugs collide with static routes under /books.
var reservedSlugs = map[string]bool{
	"popular":      true,
	"category":     true,
	"my-purchases": true,
}

const (
	// PopularLimit is the number of books on the popular shelf.
	PopularLimit = 3
	// DefaultPageSize applies when a page is requested without a limit.
	DefaultPageSize = 12
	// MaxPageSize caps a requested page size.
	MaxPageSize = 100

	maxTitleLength       = 200
	maxCategoryLength    = 50
	maxDescriptionLength = 256 * 1024
)

// DefaultSlides is the storefront carousel.
var DefaultSlides = []model.Slide{
	{ID: 1, Title: "프론트엔드 면접 완전 정복", Image: "/images/slide1.png", Link: "/books/frontend01"},
	{ID: 2, Title: "백엔드 면접 핵심 정리", Image: "/images/slide2.png", Link: "/books/backend01"},
	{ID: 3, Title: "무료 샘플 전자책", Image: "/images/slide3.png", Link: "/books/frontend00"},
}

// CatalogService handles catalog reads and admin catalog management.
type CatalogService struct {
	books        BookStore
	cache        BookCache
	descriptions DescriptionStore
	logger       *slog.Logger
	metrics      metrics.Recorder
	slides       []model.Slide
	now          func() time.Time
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(books BookStore, bookCache BookCache, descriptions DescriptionStore, logger *slog.Logger, recorder metrics.Recorder) *CatalogService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CatalogService{
		books:        books,
		cache:        bookCache,
		descriptions: descriptions,
		logger:       logger.With("component", "service.catalog"),
		metrics:      recorder,
		slides:       DefaultSlides,
		now:          time.Now,
	}
}

// ListBooksInput defines input for listing the catalog.
// Page 0 means no pagination: every matching book is returned.
type ListBooksInput struct {
	Category string
	Page     int
	Limit    int
}

// ListBooks returns catalog entries ordered by title index.
func (s *CatalogService) ListBooks(ctx context.Context, input ListBooksInput) (*model.BookPage, error) {
	filter := repository.BookFilter{Category: strings.TrimSpace(input.Category)}

	if input.Page <= 0 {
		books, total, err := s.books.ListBooks(ctx, filter, 0, 0)
		if err != nil {
			return nil, err
		}
		return &model.BookPage{Items: books, Total: total}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	books, total, err := s.books.ListBooks(ctx, filter, (input.Page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	return &model.BookPage{
		Items:      books,
		Page:       input.Page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// PopularBooks returns the best sellers, served from cache when possible.
func (s *CatalogService) PopularBooks(ctx context.Context) ([]*model.Book, error) {
	cached, err := s.cache.GetPopular(ctx)
	if err == nil {
		s.metrics.IncCatalogCacheHit()
		return cached, nil
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncCatalogCacheMiss()
	} else {
		s.logger.Warn("popular cache read failed", "error", err)
	}

	books, err := s.books.PopularBooks(ctx, PopularLimit)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetPopular(ctx, books); err != nil {
		s.logger.Warn("popular cache write failed", "error", err)
	}
	return books, nil
}

// GetBook resolves a book by slug with a cache-first lookup.
func (s *CatalogService) GetBook(ctx context.Context, slug string) (*model.Book, error) {
	cached, err := s.cache.GetBook(ctx, slug)
	if err == nil {
		s.metrics.IncCatalogCacheHit()
		return cached, nil
	}

	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncCatalogCacheMiss()
		if negative, _ := s.cache.IsNegativelyCached(ctx, slug); negative {
			return nil, ErrBookNotFound
		}
	} else {
		s.logger.Warn("book cache read failed", "slug", slug, "error", err)
	}

	book, err := s.books.GetBookBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			_ = s.cache.SetNegativeCache(ctx, slug)
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	if err := s.cache.SetBook(ctx, book); err != nil {
		s.logger.Warn("book cache write failed", "slug", slug, "error", err)
	}
	return book, nil
}

// GetDescription returns the markdown description for a book, "" when none exists.
func (s *CatalogService) GetDescription(ctx context.Context, slug string) (string, error) {
	if _, err := s.GetBook(ctx, slug); err != nil {
		return "", err
	}

	content, err := s.descriptions.Get(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return content, nil
}

// Slides returns the storefront carousel.
func (s *CatalogService) Slides() []model.Slide {
	return s.slides
}

// BookInput defines the editable fields of a catalog entry.
type BookInput struct {
	Title         string
	Slug          string
	Category      string
	TitleIndex    int
	Price         int64
	OriginalPrice int64
	KmongURL      string
	FileRef       string
	FileName      string
}

// CreateBook adds a book to the catalog.
func (s *CatalogService) CreateBook(ctx context.Context, input BookInput) (*model.Book, error) {
	input = normalizeBookInput(input)
	if err := validateBookInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	book := &model.Book{
		ID:            uuid.NewString(),
		Title:         input.Title,
		Slug:          input.Slug,
		Category:      input.Category,
		TitleIndex:    input.TitleIndex,
		Price:         input.Price,
		OriginalPrice: input.OriginalPrice,
		KmongURL:      input.KmongURL,
		FileRef:       input.FileRef,
		FileName:      input.FileName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.books.CreateBook(ctx, book); err != nil {
		return nil, mapBookConflict(err)
	}

	s.invalidate(ctx, book.Slug)
	s.logger.Info("book_created", "slug", book.Slug, "title_index", book.TitleIndex)
	return book, nil
}

// UpdateBook replaces the editable fields of the book identified by slug.
// A slug change carries the description along.
func (s *CatalogService) UpdateBook(ctx context.Context, slug string, input BookInput) (*model.Book, error) {
	input = normalizeBookInput(input)
	if err := validateBookInput(input); err != nil {
		return nil, err
	}

	book := &model.Book{
		Title:         input.Title,
		Slug:          input.Slug,
		Category:      input.Category,
		TitleIndex:    input.TitleIndex,
		Price:         input.Price,
		OriginalPrice: input.OriginalPrice,
		KmongURL:      input.KmongURL,
		FileRef:       input.FileRef,
		FileName:      input.FileName,
	}

	if err := s.books.UpdateBook(ctx, slug, book); err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, mapBookConflict(err)
	}

	s.invalidate(ctx, slug)
	if book.Slug != slug {
		s.invalidate(ctx, book.Slug)
		if err := s.descriptions.Rename(ctx, slug, book.Slug); err != nil {
			s.logger.Warn("description rename failed", "from", slug, "to", book.Slug, "error", err)
		}
	}

	s.logger.Info("book_updated", "slug", book.Slug)
	return book, nil
}

// DeleteBook removes a book. Existing entitlements stay in the ledger.
func (s *CatalogService) DeleteBook(ctx context.Context, slug string) error {
	if err := s.books.DeleteBook(ctx, slug); err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return err
	}

	s.invalidate(ctx, slug)
	if err := s.descriptions.Delete(ctx, slug); err != nil {
		s.logger.Warn("description delete failed", "slug", slug, "error", err)
	}

	s.logger.Info("book_deleted", "slug", slug)
	return nil
}

// PutDescription stores the markdown description for an existing book.
func (s *CatalogService) PutDescription(ctx context.Context, slug, content string) error {
	if len(content) > maxDescriptionLength {
		return invalid("content", "description too long")
	}
	if _, err := s.GetBook(ctx, slug); err != nil {
		return err
	}

	if err := s.descriptions.Put(ctx, slug, content); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	s.logger.Info("description_updated", "slug", slug, "bytes", len(content))
	return nil
}

// invalidate drops cached entries that may reference slug.
func (s *CatalogService) invalidate(ctx context.Context, slug string) {
	if err := s.cache.DeleteBook(ctx, slug); err != nil {
		s.logger.Warn("book cache invalidation failed", "slug", slug, "error", err)
	}
	if err := s.cache.InvalidatePopular(ctx); err != nil {
		s.logger.Warn("popular cache invalidation failed", "error", err)
	}
}

func normalizeBookInput(input BookInput) BookInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Slug = strings.ToLower(strings.TrimSpace(input.Slug))
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.KmongURL = strings.TrimSpace(input.KmongURL)
	input.FileRef = strings.TrimSpace(input.FileRef)
	input.FileName = strings.TrimSpace(input.FileName)
	return input
}

func validateBookInput(input BookInput) error {
	if n := utf8.RuneCountInString(input.Title); n == 0 || n > maxTitleLength {
		return invalid("title", fmt.Sprintf("must be 1-%d characters", maxTitleLength))
	}
	if !slugRegex.MatchString(input.Slug) {
		return invalid("slug", "must be 2-64 lowercase letters, digits or '-'")
	}
	if reservedSlugs[input.Slug] {
		return invalid("slug", "is reserved")
	}
	if input.Category == "" || len(input.Category) > maxCategoryLength {
		return invalid("category", "is required")
	}
	if input.TitleIndex < 0 {
		return invalid("titleIndex", "must not be negative")
	}
	if input.Price < 0 || input.OriginalPrice < 0 {
		return invalid("price", "must not be negative")
	}
	if input.KmongURL != "" && !strings.HasPrefix(input.KmongURL, "https://") {
		return invalid("kmongUrl", "must be an https URL")
	}
	return nil
}

func mapBookConflict(err error) error {
	switch {
	case errors.Is(err, repository.ErrSlugExists):
		return ErrSlugExists
	case errors.Is(err, repository.ErrTitleIndexExists):
		return ErrTitleIndexExists
	default:
		return err
	}
}
