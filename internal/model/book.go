package model

import (
	"strings"
	"time"
)

// Book represents an ebook in the catalog.
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Category      string    `json:"category"`
	TitleIndex    int       `json:"titleIndex"`
	Price         int64     `json:"price"`
	OriginalPrice int64     `json:"originalPrice"`
	KmongURL      string    `json:"kmongUrl,omitempty"`
	FileRef       string    `json:"-"` // Object key or https URL, never exposed
	FileName      string    `json:"fileName,omitempty"`
	SalesCount    int64     `json:"salesCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsFree reports whether the book is the free sample that needs no purchase.
func (b *Book) IsFree(freeSlug string) bool {
	return freeSlug != "" && b.Slug == freeSlug
}

// DiscountRate returns the discount percentage relative to the original price.
func (b *Book) DiscountRate() int {
	if b.OriginalPrice <= 0 || b.Price >= b.OriginalPrice {
		return 0
	}
	return int((b.OriginalPrice - b.Price) * 100 / b.OriginalPrice)
}

// HasRemoteFile reports whether FileRef points at an external HTTP(S) host
// rather than a key in the object store.
func (b *Book) HasRemoteFile() bool {
	return strings.HasPrefix(b.FileRef, "https://") || strings.HasPrefix(b.FileRef, "http://")
}

// DownloadName returns the file name offered to the client.
func (b *Book) DownloadName() string {
	if b.FileName != "" {
		return b.FileName
	}
	if b.FileRef != "" {
		ref := b.FileRef
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
		if i := strings.LastIndex(ref, "/"); i >= 0 && i < len(ref)-1 {
			return ref[i+1:]
		}
		return ref
	}
	return b.Slug + ".zip"
}

// BookPage is one page of a paginated catalog listing.
type BookPage struct {
	Items      []*Book
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// Slide is a promotional carousel entry on the storefront home page.
type Slide struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
	Link  string `json:"link"`
}
