package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careerbooks/careerbooks/internal/model"
)

// Catalog TTLs.
const (
	// DefaultBookTTL is the TTL for cached book data.
	DefaultBookTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute

	// PopularTTL bounds how stale the popular list may get between grants.
	PopularTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// cachedBook is the Redis representation of a book. Unlike the API model it
// keeps the file reference, which the download path needs.
type cachedBook struct {
	ID            string `redis:"id" json:"id"`
	Title         string `redis:"title" json:"title"`
	Slug          string `redis:"slug" json:"slug"`
	Category      string `redis:"category" json:"category"`
	TitleIndex    int    `redis:"title_index" json:"title_index"`
	Price         int64  `redis:"price" json:"price"`
	OriginalPrice int64  `redis:"original_price" json:"original_price"`
	KmongURL      string `redis:"kmong_url" json:"kmong_url"`
	FileRef       string `redis:"file_ref" json:"file_ref"`
	FileName      string `redis:"file_name" json:"file_name"`
	SalesCount    int64  `redis:"sales_count" json:"sales_count"`
	CreatedAt     int64  `redis:"created_at" json:"created_at"`
	UpdatedAt     int64  `redis:"updated_at" json:"updated_at"`
}

func toCachedBook(b *model.Book) cachedBook {
	return cachedBook{
		ID:            b.ID,
		Title:         b.Title,
		Slug:          b.Slug,
		Category:      b.Category,
		TitleIndex:    b.TitleIndex,
		Price:         b.Price,
		OriginalPrice: b.OriginalPrice,
		KmongURL:      b.KmongURL,
		FileRef:       b.FileRef,
		FileName:      b.FileName,
		SalesCount:    b.SalesCount,
		CreatedAt:     b.CreatedAt.Unix(),
		UpdatedAt:     b.UpdatedAt.Unix(),
	}
}

func (c cachedBook) toBook() *model.Book {
	return &model.Book{
		ID:            c.ID,
		Title:         c.Title,
		Slug:          c.Slug,
		Category:      c.Category,
		TitleIndex:    c.TitleIndex,
		Price:         c.Price,
		OriginalPrice: c.OriginalPrice,
		KmongURL:      c.KmongURL,
		FileRef:       c.FileRef,
		FileName:      c.FileName,
		SalesCount:    c.SalesCount,
		CreatedAt:     time.Unix(c.CreatedAt, 0).UTC(),
		UpdatedAt:     time.Unix(c.UpdatedAt, 0).UTC(),
	}
}

func bookKey(slug string) string { return key("book", slug) }

// missKey marks a slug the database reported as absent.
func missKey(slug string) string { return key("book", slug, "miss") }

var popularKey = key("books", "popular")

// GetBook retrieves a book from cache by slug.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetBook(ctx context.Context, slug string) (*model.Book, error) {
	res := c.client.HGetAll(ctx, bookKey(slug))
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}

	var cached cachedBook
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached book: %w", err)
	}

	return cached.toBook(), nil
}

// SetBook stores a book in cache and clears any negative entry for its slug.
func (c *Cache) SetBook(ctx context.Context, book *model.Book) error {
	k := bookKey(book.Slug)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, toCachedBook(book))
	pipe.Expire(ctx, k, c.bookTTL)
	pipe.Del(ctx, missKey(book.Slug))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache book: %w", err)
	}

	return nil
}

// DeleteBook removes a book and its negative entry from cache.
func (c *Cache) DeleteBook(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, bookKey(slug), missKey(slug)).Err(); err != nil {
		return fmt.Errorf("failed to delete book from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a slug is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, slug string) (bool, error) {
	exists, err := c.client.Exists(ctx, missKey(slug)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a slug as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, slug string) error {
	if err := c.client.SetEx(ctx, missKey(slug), "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// GetPopular returns the cached popular list.
func (c *Cache) GetPopular(ctx context.Context) ([]*model.Book, error) {
	raw, err := c.client.Get(ctx, popularKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cached []cachedBook
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode popular list: %w", err)
	}

	books := make([]*model.Book, 0, len(cached))
	for _, cb := range cached {
		books = append(books, cb.toBook())
	}
	return books, nil
}

// SetPopular caches the popular list.
func (c *Cache) SetPopular(ctx context.Context, books []*model.Book) error {
	cached := make([]cachedBook, 0, len(books))
	for _, b := range books {
		cached = append(cached, toCachedBook(b))
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to encode popular list: %w", err)
	}

	if err := c.client.Set(ctx, popularKey, raw, PopularTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache popular list: %w", err)
	}
	return nil
}

// InvalidatePopular drops the cached popular list.
func (c *Cache) InvalidatePopular(ctx context.Context) error {
	if err := c.client.Del(ctx, popularKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate popular list: %w", err)
	}
	return nil
}
