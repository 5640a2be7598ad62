package repository

import (
	"context"
	"fmt"

	"github.com/careerbooks/careerbooks/internal/model"
)

// CreatePurchaseRequest stores a bank-transfer submission.
func (r *Repository) CreatePurchaseRequest(ctx context.Context, req *model.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (id, depositor, email, book_slug, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		req.ID,
		req.Depositor,
		req.Email,
		req.BookSlug,
		req.Memo,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase request: %w", err)
	}
	return nil
}

// ListPurchaseRequests returns the newest purchase requests first.
func (r *Repository) ListPurchaseRequests(ctx context.Context, offset, limit int) ([]*model.PurchaseRequest, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_requests`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchase requests: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, depositor, email, book_slug, memo, created_at
		FROM purchase_requests
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*model.PurchaseRequest, 0)
	for rows.Next() {
		var pr model.PurchaseRequest
		if err := rows.Scan(&pr.ID, &pr.Depositor, &pr.Email, &pr.BookSlug, &pr.Memo, &pr.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		requests = append(requests, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating purchase requests: %w", err)
	}

	return requests, total, nil
}
