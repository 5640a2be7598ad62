package service

import (
	"context"
	"time"

	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/storage"
)

// UserStore is the user persistence used by services.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// BookStore is the catalog persistence used by services.
type BookStore interface {
	CreateBook(ctx context.Context, book *model.Book) error
	GetBookBySlug(ctx context.Context, slug string) (*model.Book, error)
	ListBooks(ctx context.Context, filter repository.BookFilter, offset, limit int) ([]*model.Book, int, error)
	PopularBooks(ctx context.Context, limit int) ([]*model.Book, error)
	UpdateBook(ctx context.Context, slug string, book *model.Book) error
	DeleteBook(ctx context.Context, slug string) error
}

// EntitlementStore is the entitlement ledger persistence.
type EntitlementStore interface {
	GetEntitlement(ctx context.Context, userID, slug string) (*model.Entitlement, error)
	GrantEntitlement(ctx context.Context, userID, slug string, acquiredAt time.Time) (*model.Entitlement, error)
	ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error)
}

// PurchaseRequestStore persists manual bank-transfer requests.
type PurchaseRequestStore interface {
	CreatePurchaseRequest(ctx context.Context, req *model.PurchaseRequest) error
	ListPurchaseRequests(ctx context.Context, offset, limit int) ([]*model.PurchaseRequest, int, error)
}

// BookCache is the read-through cache in front of the catalog.
type BookCache interface {
	GetBook(ctx context.Context, slug string) (*model.Book, error)
	SetBook(ctx context.Context, book *model.Book) error
	DeleteBook(ctx context.Context, slug string) error
	IsNegativelyCached(ctx context.Context, slug string) (bool, error)
	SetNegativeCache(ctx context.Context, slug string) error
	GetPopular(ctx context.Context) ([]*model.Book, error)
	SetPopular(ctx context.Context, books []*model.Book) error
	InvalidatePopular(ctx context.Context) error
}

// DescriptionStore holds per-book markdown.
type DescriptionStore interface {
	Get(ctx context.Context, slug string) (string, error)
	Put(ctx context.Context, slug, content string) error
	Rename(ctx context.Context, oldSlug, newSlug string) error
	Delete(ctx context.Context, slug string) error
}

// FileLocator resolves book files for download and email.
type FileLocator interface {
	Locate(ctx context.Context, book *model.Book) (*storage.FileLocation, error)
	Open(ctx context.Context, book *model.Book) (*storage.FileLocation, error)
	LinkFor(ctx context.Context, book *model.Book) (string, error)
}

// TokenParser validates session tokens.
type TokenParser interface {
	Parse(token string) (*model.AuthContext, error)
}

// PurchaseNotifier tells operators about new purchase requests.
type PurchaseNotifier interface {
	NotifyPurchaseRequest(ctx context.Context, req *model.PurchaseRequest, bookTitle string) error
}

// DeliveryLister lists queued notifications for inspection.
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, statuses []string, limit int) ([]*model.NotificationDelivery, error)
}
