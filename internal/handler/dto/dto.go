// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/careerbooks/careerbooks/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// SignupRequest represents the request body for creating an account.
type SignupRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// LoginRequest represents the request body for logging in.
type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// UserResponse wraps a sanitized user.
type UserResponse struct {
	User model.UserProfile `json:"user"`
}

// LoginResponse carries the session token and the user it belongs to.
type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      model.UserProfile `json:"user"`
}

// Pagination describes one page of a catalog listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// BookResponse is a catalog entry as shown to clients.
type BookResponse struct {
	*model.Book
	DiscountRate int `json:"discountRate"`
}

// BookListResponse is a catalog listing. Pagination is only set for paged requests.
type BookListResponse struct {
	Items      []BookResponse `json:"items"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}

// DescriptionResponse carries a book's markdown description.
type DescriptionResponse struct {
	Slug    string `json:"slug"`
	Content string `json:"content"`
}

// DescriptionRequest is the admin body for replacing a description.
type DescriptionRequest struct {
	Content string `json:"content"`
}

// AccessResponse reports whether the caller owns a book.
type AccessResponse struct {
	Allowed bool `json:"allowed"`
}

// PurchaseResponse is returned after a successful purchase.
type PurchaseResponse struct {
	Message     string             `json:"message"`
	Entitlement *model.Entitlement `json:"entitlement"`
}

// PurchaseListResponse lists the caller's books.
type PurchaseListResponse struct {
	Items []model.Purchase `json:"items"`
}

// SlideListResponse lists carousel slides.
type SlideListResponse struct {
	Items []model.Slide `json:"items"`
}

// PurchaseRequestBody is a manual bank-transfer request.
type PurchaseRequestBody struct {
	Depositor string `json:"depositor"`
	Email     string `json:"email"`
	Slug      string `json:"slug"`
	Memo      string `json:"memo,omitempty"`
}

// PurchaseRequestCreated acknowledges a stored bank-transfer request.
type PurchaseRequestCreated struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// PurchaseRequestListResponse is a page of bank-transfer requests.
type PurchaseRequestListResponse struct {
	Items      []*model.PurchaseRequest `json:"items"`
	Pagination *Pagination              `json:"pagination"`
}

// BookRequest is the admin body for creating or replacing a book.
type BookRequest struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	TitleIndex    *int   `json:"titleIndex"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"originalPrice"`
	KmongURL      string `json:"kmongUrl,omitempty"`
	FileRef       string `json:"fileRef,omitempty"`
	FileName      string `json:"fileName,omitempty"`
}

// AdminBook exposes the file reference that public responses hide.
type AdminBook struct {
	*model.Book
	FileRef string `json:"fileRef"`
}

// AdminBookListResponse lists the catalog for administrators.
type AdminBookListResponse struct {
	Items []AdminBook `json:"items"`
}

// UserListResponse lists accounts for administrators.
type UserListResponse struct {
	Items []*model.User `json:"items"`
}

// ConfirmPurchaseRequest grants a book to the user with the given handle.
type ConfirmPurchaseRequest struct {
	UserID string `json:"userId"`
	Slug   string `json:"slug"`
}

// SendEbookRequest emails a book to a buyer.
type SendEbookRequest struct {
	Email string `json:"email"`
	Slug  string `json:"slug"`
}

// NotificationListResponse lists outbox deliveries.
type NotificationListResponse struct {
	Items []*model.NotificationDelivery `json:"items"`
}

// ToBookResponse converts a Book model to BookResponse DTO.
func ToBookResponse(book *model.Book) BookResponse {
	return BookResponse{Book: book, DiscountRate: book.DiscountRate()}
}

// ToBookListResponse converts a catalog page to BookListResponse.
// Pagination is attached only when paged is true.
func ToBookListResponse(page *model.BookPage, paged bool) *BookListResponse {
	items := make([]BookResponse, len(page.Items))
	for i, b := range page.Items {
		items[i] = ToBookResponse(b)
	}
	resp := &BookListResponse{Items: items}
	if paged {
		resp.Pagination = &Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		}
	}
	return resp
}

// ToBookItems converts a plain slice of books.
func ToBookItems(books []*model.Book) *BookListResponse {
	items := make([]BookResponse, len(books))
	for i, b := range books {
		items[i] = ToBookResponse(b)
	}
	return &BookListResponse{Items: items}
}

// ToAdminBookList converts books for the admin listing.
func ToAdminBookList(books []*model.Book) *AdminBookListResponse {
	items := make([]AdminBook, len(books))
	for i, b := range books {
		items[i] = AdminBook{Book: b, FileRef: b.FileRef}
	}
	return &AdminBookListResponse{Items: items}
}
