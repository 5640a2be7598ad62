package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
)

const (
	// DefaultBatchSize is the number of deliveries to process per poll.
	DefaultBatchSize = 20
	// DefaultPollInterval is the time between polls for due deliveries.
	DefaultPollInterval = 30 * time.Second
	// DefaultMetricsInterval is how often to update the queue depth gauge.
	DefaultMetricsInterval = time.Minute
)

// Worker retries queued notifications.
type Worker struct {
	notifier        *Notifier
	store           Store
	logger          *slog.Logger
	metrics         metrics.Recorder
	batchSize       int
	pollInterval    time.Duration
	metricsInterval time.Duration
	lastMetrics     time.Time
	started         bool
}

// NewWorker creates a retry worker sharing the notifier's webhook and client.
func NewWorker(notifier *Notifier, store Store, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		notifier:        notifier,
		store:           store,
		logger:          logger.With("component", "notify.worker"),
		metrics:         recorder,
		batchSize:       DefaultBatchSize,
		pollInterval:    DefaultPollInterval,
		metricsInterval: DefaultMetricsInterval,
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("notification worker started", "interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ProcessOnce sends one batch of due deliveries.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	if !w.notifier.Enabled() {
		return nil
	}

	deliveries, err := w.store.GetDue(ctx, w.notifier.now(), w.batchSize)
	if err != nil {
		return fmt.Errorf("get due deliveries: %w", err)
	}

	for _, delivery := range deliveries {
		if err := w.deliver(ctx, delivery); err != nil {
			w.logger.Warn("delivery update failed",
				"delivery_id", delivery.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, d *model.NotificationDelivery) error {
	n := w.notifier
	at := n.now()
	status, err := post(ctx, n.client, n.webhookURL, n.secret, []byte(d.PayloadJSON), at)

	if err == nil {
		w.logger.Info("queued notification delivered",
			"delivery_id", d.ID,
			"request_id", d.PurchaseRequestID,
			"attempt", d.AttemptCount+1,
		)
		w.metrics.IncNotification(string(model.DeliveryStatusSuccess))
		return w.store.MarkSuccess(ctx, d.ID, status, at)
	}

	nextAttempt := d.AttemptCount + 1
	exhausted := IsExhausted(nextAttempt, d.MaxAttempts)

	outcome := model.DeliveryStatusFailed
	if exhausted {
		outcome = model.DeliveryStatusExhausted
	}
	w.logger.Warn("queued notification failed",
		"delivery_id", d.ID,
		"attempt", nextAttempt,
		"exhausted", exhausted,
		"error", err,
	)
	w.metrics.IncNotification(string(outcome))

	var httpStatus *int
	if status != 0 {
		httpStatus = &status
	}
	return w.store.MarkFailure(ctx, d.ID, httpStatus, err.Error(), at, at.Add(NextRetryDelay(nextAttempt)), exhausted)
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.store.QueueDepth(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetNotificationQueueDepth(depth)
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
