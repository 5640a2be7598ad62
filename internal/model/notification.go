package model

import "time"

// DeliveryStatus represents notification delivery state.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// NotificationDelivery is an outbox row for a purchase-request notification
// that could not be delivered inline.
type NotificationDelivery struct {
	ID                string         `json:"id"`
	PurchaseRequestID string         `json:"purchaseRequestId"`
	PayloadJSON       string         `json:"-"`
	Status            DeliveryStatus `json:"status"`
	AttemptCount      int            `json:"attemptCount"`
	MaxAttempts       int            `json:"maxAttempts"`
	NextRetryAt       time.Time      `json:"nextRetryAt"`
	LastAttemptAt     *time.Time     `json:"lastAttemptAt,omitempty"`
	LastHTTPStatus    *int           `json:"lastHttpStatus,omitempty"`
	LastError         string         `json:"lastError,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// CanRetry returns true if delivery can be retried.
func (d *NotificationDelivery) CanRetry() bool {
	return (d.Status == DeliveryStatusFailed || d.Status == DeliveryStatusPending) && d.AttemptCount < d.MaxAttempts
}

// IsTerminal returns true if delivery is in a terminal state.
func (d *NotificationDelivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusExhausted
}
