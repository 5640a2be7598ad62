// Package notify delivers operator notifications for manual bank-transfer
// purchase requests, with a Postgres outbox for retries.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
)

// Options configures a Notifier.
type Options struct {
	WebhookURL  string
	Timeout     time.Duration
	MaxAttempts int

	// SigningSecret, when set, signs every post with HMAC-SHA256.
	SigningSecret string
}

// Notifier posts purchase-request notifications to the operator webhook.
type Notifier struct {
	webhookURL  string
	secret      string
	client      *http.Client
	store       Store
	logger      *slog.Logger
	metrics     metrics.Recorder
	maxAttempts int
	now         func() time.Time
}

// NewNotifier creates a Notifier. An empty webhook URL disables delivery.
func NewNotifier(opts Options, store Store, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = len(retryDelays)
	}
	return &Notifier{
		webhookURL:  opts.WebhookURL,
		secret:      opts.SigningSecret,
		client:      NewHTTPClient(opts.Timeout),
		store:       store,
		logger:      logger.With("component", "notify"),
		metrics:     recorder,
		maxAttempts: opts.MaxAttempts,
		now:         time.Now,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// NotifyPurchaseRequest posts the request inline. When the post fails the
// payload is queued for the worker. The returned error only reports a failure
// to queue; delivery failures are absorbed.
func (n *Notifier) NotifyPurchaseRequest(ctx context.Context, req *model.PurchaseRequest, bookTitle string) error {
	if !n.Enabled() {
		n.logger.Info("notification skipped, webhook not configured", "request_id", req.ID)
		return nil
	}

	payload, err := PurchaseRequestMessage(req, bookTitle).Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	attemptAt := n.now()
	status, sendErr := post(ctx, n.client, n.webhookURL, n.secret, payload, attemptAt)
	if sendErr == nil {
		n.metrics.IncNotification(string(model.DeliveryStatusSuccess))
		n.logger.Info("purchase request notified", "request_id", req.ID, "http_status", status)
		return nil
	}

	n.metrics.IncNotification(string(model.DeliveryStatusFailed))
	n.logger.Warn("inline notification failed, queueing",
		"request_id", req.ID,
		"error", sendErr,
	)

	delivery := &model.NotificationDelivery{
		ID:                ulid.Make().String(),
		PurchaseRequestID: req.ID,
		PayloadJSON:       string(payload),
		Status:            model.DeliveryStatusFailed,
		AttemptCount:      1,
		MaxAttempts:       n.maxAttempts,
		NextRetryAt:       attemptAt.Add(NextRetryDelay(0)),
		LastAttemptAt:     &attemptAt,
		LastError:         sendErr.Error(),
		CreatedAt:         attemptAt,
		UpdatedAt:         attemptAt,
	}
	if status != 0 {
		delivery.LastHTTPStatus = &status
	}
	if IsExhausted(delivery.AttemptCount, delivery.MaxAttempts) {
		delivery.Status = model.DeliveryStatusExhausted
	}

	// The request context may already be tight; queueing must still happen.
	queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := n.store.Enqueue(queueCtx, delivery); err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	return nil
}
