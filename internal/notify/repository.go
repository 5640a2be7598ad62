package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/careerbooks/careerbooks/internal/model"
)

// maxErrorLength bounds the stored last_error text.
const maxErrorLength = 500

// Store persists queued notifications.
type Store interface {
	Enqueue(ctx context.Context, delivery *model.NotificationDelivery) error
	GetDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationDelivery, error)
	MarkSuccess(ctx context.Context, id string, httpStatus int, at time.Time) error
	MarkFailure(ctx context.Context, id string, httpStatus *int, errMsg string, at, nextRetryAt time.Time, exhausted bool) error
	QueueDepth(ctx context.Context) (int64, error)
}

// Repository is the Postgres outbox for notification deliveries.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new outbox repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const deliveryColumns = `id, purchase_request_id, payload_json, status, attempt_count,
	max_attempts, next_retry_at, last_attempt_at, last_http_status, last_error,
	created_at, updated_at`

// Enqueue stores a delivery for the worker.
func (r *Repository) Enqueue(ctx context.Context, d *model.NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries (
			id, purchase_request_id, payload_json, status, attempt_count,
			max_attempts, next_retry_at, last_attempt_at, last_http_status, last_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.PurchaseRequestID,
		d.PayloadJSON,
		string(d.Status),
		d.AttemptCount,
		d.MaxAttempts,
		d.NextRetryAt,
		d.LastAttemptAt,
		d.LastHTTPStatus,
		truncateError(d.LastError),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification delivery: %w", err)
	}
	return nil
}

// GetDue returns deliveries whose retry time has passed.
func (r *Repository) GetDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM notification_deliveries
		WHERE status IN ('pending', 'failed')
		  AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// MarkSuccess records a successful attempt.
func (r *Repository) MarkSuccess(ctx context.Context, id string, httpStatus int, at time.Time) error {
	query := `
		UPDATE notification_deliveries
		SET status = 'success',
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			last_http_status = $3,
			last_error = '',
			updated_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at, httpStatus); err != nil {
		return fmt.Errorf("update delivery success: %w", err)
	}
	return nil
}

// MarkFailure records a failed attempt and schedules the next one.
func (r *Repository) MarkFailure(ctx context.Context, id string, httpStatus *int, errMsg string, at, nextRetryAt time.Time, exhausted bool) error {
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}

	query := `
		UPDATE notification_deliveries
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = $3,
			last_http_status = $4,
			last_error = $5,
			next_retry_at = $6,
			updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, string(status), at, httpStatus, truncateError(errMsg), nextRetryAt)
	if err != nil {
		return fmt.Errorf("update delivery failure: %w", err)
	}
	return nil
}

// ListDeliveries returns the newest deliveries, optionally filtered by status.
func (r *Repository) ListDeliveries(ctx context.Context, statuses []string, limit int) ([]*model.NotificationDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM notification_deliveries
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	if statuses == nil {
		statuses = []string{}
	}
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses), limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// QueueDepth returns the count of pending and failed deliveries.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_deliveries WHERE status IN ('pending', 'failed')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return count, nil
}

func scanDeliveries(rows *sql.Rows) ([]*model.NotificationDelivery, error) {
	deliveries := make([]*model.NotificationDelivery, 0)
	for rows.Next() {
		var d model.NotificationDelivery
		var status string

		if err := rows.Scan(
			&d.ID,
			&d.PurchaseRequestID,
			&d.PayloadJSON,
			&status,
			&d.AttemptCount,
			&d.MaxAttempts,
			&d.NextRetryAt,
			&d.LastAttemptAt,
			&d.LastHTTPStatus,
			&d.LastError,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		d.Status = model.DeliveryStatus(status)
		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
