package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/careerbooks/careerbooks/internal/model"
)

// Common errors for book repository operations.
var (
	ErrBookNotFound     = errors.New("book not found")
	ErrSlugExists       = errors.New("slug already exists")
	ErrTitleIndexExists = errors.New("title index already exists")

	// ErrSlugRetired is returned for a slug that a deleted book's buyers still
	// hold entitlements to. Reusing it would hand them the new book.
	ErrSlugRetired = fmt.Errorf("%w: held by purchases of a deleted book", ErrSlugExists)
)

const bookColumns = `id, title, slug, category, title_index, price, original_price,
	kmong_url, file_ref, file_name, sales_count, created_at, updated_at`

// BookFilter narrows catalog listings.
type BookFilter struct {
	Category string
}

// CreateBook inserts a new book into the catalog.
func (r *Repository) CreateBook(ctx context.Context, book *model.Book) error {
	query := `
		INSERT INTO books (id, title, slug, category, title_index, price, original_price,
		                   kmong_url, file_ref, file_name, sales_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureSlugFree(ctx, tx, book.Slug); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, query,
			book.ID,
			book.Title,
			book.Slug,
			book.Category,
			book.TitleIndex,
			book.Price,
			book.OriginalPrice,
			book.KmongURL,
			book.FileRef,
			book.FileName,
			book.SalesCount,
			book.CreatedAt,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlugRetired) {
			return err
		}
		if mapped := bookConflict(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create book: %w", err)
	}

	book.UpdatedAt = book.CreatedAt
	return nil
}

// GetBookBySlug retrieves a book by its slug.
func (r *Repository) GetBookBySlug(ctx context.Context, slug string) (*model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE slug = $1`

	book, err := scanBook(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by slug: %w", err)
	}

	return book, nil
}

// ListBooks returns books ordered by title index.
// A limit of 0 returns every matching book. The total count ignores paging.
func (r *Repository) ListBooks(ctx context.Context, filter BookFilter, offset, limit int) ([]*model.Book, int, error) {
	where := ""
	args := []any{}
	if filter.Category != "" {
		where = " WHERE category = $1"
		args = append(args, filter.Category)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	query := `SELECT ` + bookColumns + ` FROM books` + where + ` ORDER BY title_index, slug`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	books, err := r.queryBooks(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// PopularBooks returns the top books by sales count.
func (r *Repository) PopularBooks(ctx context.Context, limit int) ([]*model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books ORDER BY sales_count DESC, title_index LIMIT $1`
	return r.queryBooks(ctx, query, limit)
}

// UpdateBook overwrites the mutable fields of the book identified by slug.
// The sales counter is left untouched. When the slug changes, entitlements are
// re-keyed in the same transaction so owners keep access.
func (r *Repository) UpdateBook(ctx context.Context, slug string, book *model.Book) error {
	query := `
		UPDATE books
		SET title = $2, slug = $3, category = $4, title_index = $5, price = $6,
		    original_price = $7, kmong_url = $8, file_ref = $9, file_name = $10,
		    updated_at = NOW()
		WHERE slug = $1
		RETURNING ` + bookColumns

	var updated *model.Book
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if book.Slug != slug {
			if err := ensureSlugFree(ctx, tx, book.Slug); err != nil {
				return err
			}
		}

		var err error
		updated, err = scanBook(tx.QueryRow(ctx, query,
			slug,
			book.Title,
			book.Slug,
			book.Category,
			book.TitleIndex,
			book.Price,
			book.OriginalPrice,
			book.KmongURL,
			book.FileRef,
			book.FileName,
		))
		if err != nil {
			return err
		}

		if updated.Slug != slug {
			if _, err := tx.Exec(ctx,
				`UPDATE entitlements SET book_slug = $2 WHERE book_slug = $1`,
				slug, updated.Slug,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBookNotFound
		}
		if errors.Is(err, ErrSlugRetired) {
			return err
		}
		if mapped := bookConflict(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update book: %w", err)
	}

	*book = *updated
	return nil
}

// DeleteBook removes a book from the catalog. Entitlements referencing the
// slug are kept and simply stop appearing in purchase listings; the slug is
// retired while any remain.
func (r *Repository) DeleteBook(ctx context.Context, slug string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM books WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// UpsertImportedBook inserts or refreshes a book carried over from the legacy store.
// The legacy sales counter is authoritative during import.
func (r *Repository) UpsertImportedBook(ctx context.Context, book *model.Book) error {
	query := `
		INSERT INTO books (id, title, slug, category, title_index, price, original_price,
		                   kmong_url, file_ref, file_name, sales_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (slug) DO UPDATE
		SET title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    title_index = EXCLUDED.title_index,
		    price = EXCLUDED.price,
		    original_price = EXCLUDED.original_price,
		    kmong_url = EXCLUDED.kmong_url,
		    file_ref = EXCLUDED.file_ref,
		    file_name = EXCLUDED.file_name,
		    sales_count = EXCLUDED.sales_count,
		    updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Slug,
		book.Category,
		book.TitleIndex,
		book.Price,
		book.OriginalPrice,
		book.KmongURL,
		book.FileRef,
		book.FileName,
		book.SalesCount,
		book.CreatedAt,
	)
	if err != nil {
		if mapped := bookConflict(err); mapped != nil {
			return fmt.Errorf("book %q: %w", book.Slug, mapped)
		}
		return fmt.Errorf("failed to upsert book %q: %w", book.Slug, err)
	}
	return nil
}

func (r *Repository) queryBooks(ctx context.Context, query string, args ...any) ([]*model.Book, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := make([]*model.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}

	return books, nil
}

// bookConflict maps unique violations on the books table to sentinel errors.
// ensureSlugFree rejects a slug that leftover entitlements still point at.
func ensureSlugFree(ctx context.Context, tx pgx.Tx, slug string) error {
	var held bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitlements WHERE book_slug = $1)`, slug,
	).Scan(&held)
	if err != nil {
		return err
	}
	if held {
		return ErrSlugRetired
	}
	return nil
}

func bookConflict(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	if constraint == "idx_books_title_index" {
		return ErrTitleIndexExists
	}
	return ErrSlugExists
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Slug,
		&b.Category,
		&b.TitleIndex,
		&b.Price,
		&b.OriginalPrice,
		&b.KmongURL,
		&b.FileRef,
		&b.FileName,
		&b.SalesCount,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
