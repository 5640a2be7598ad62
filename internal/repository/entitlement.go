package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/careerbooks/careerbooks/internal/model"
)

// Common errors for entitlement operations.
var (
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrEntitlementExists   = errors.New("entitlement already exists")
)

// GetEntitlement returns the entitlement for a (user, book) pair.
func (r *Repository) GetEntitlement(ctx context.Context, userID, slug string) (*model.Entitlement, error) {
	query := `
		SELECT user_id, book_slug, acquired_at
		FROM entitlements
		WHERE user_id = $1 AND book_slug = $2
	`

	var e model.Entitlement
	err := r.pool.QueryRow(ctx, query, userID, slug).Scan(&e.UserID, &e.BookSlug, &e.AcquiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	return &e, nil
}

// GrantEntitlement records a purchase and bumps the book's sales counter in
// one transaction. The primary key on (user_id, book_slug) serializes
// concurrent grants: the loser sees ErrEntitlementExists and nothing is counted.
func (r *Repository) GrantEntitlement(ctx context.Context, userID, slug string, acquiredAt time.Time) (*model.Entitlement, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}

		inserted, err := tx.Exec(ctx, `
			INSERT INTO entitlements (user_id, book_slug, acquired_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, book_slug) DO NOTHING
		`, userID, slug, acquiredAt)
		if err != nil {
			return fmt.Errorf("failed to insert entitlement: %w", err)
		}
		if inserted.RowsAffected() == 0 {
			return ErrEntitlementExists
		}

		counted, err := tx.Exec(ctx, `
			UPDATE books SET sales_count = sales_count + 1, updated_at = NOW()
			WHERE slug = $1
		`, slug)
		if err != nil {
			return fmt.Errorf("failed to increment sales count: %w", err)
		}
		if counted.RowsAffected() == 0 {
			return ErrBookNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.Entitlement{UserID: userID, BookSlug: slug, AcquiredAt: acquiredAt}, nil
}

// ImportEntitlement inserts a legacy entitlement without touching sales counters.
// Existing rows keep their original acquisition time.
func (r *Repository) ImportEntitlement(ctx context.Context, e model.Entitlement) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO entitlements (user_id, book_slug, acquired_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_slug) DO NOTHING
	`, e.UserID, e.BookSlug, e.AcquiredAt)
	if err != nil {
		return false, fmt.Errorf("failed to import entitlement: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListPurchases joins a user's entitlements with current book metadata.
// Entitlements whose book was deleted are dropped by the inner join.
func (r *Repository) ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	query := `
		SELECT b.title, b.slug, b.category, b.title_index, e.acquired_at
		FROM entitlements e
		JOIN books b ON b.slug = e.book_slug
		WHERE e.user_id = $1
		ORDER BY e.acquired_at DESC, b.title_index
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]model.Purchase, 0)
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.Title, &p.Slug, &p.Category, &p.TitleIndex, &p.AcquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}
