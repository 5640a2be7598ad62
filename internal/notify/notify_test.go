package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
)

type fakeStore struct {
	mu         sync.Mutex
	deliveries map[string]*model.NotificationDelivery
	enqueueErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{deliveries: make(map[string]*model.NotificationDelivery)}
}

func (s *fakeStore) Enqueue(_ context.Context, d *model.NotificationDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	cp := *d
	s.deliveries[d.ID] = &cp
	return nil
}

func (s *fakeStore) GetDue(_ context.Context, now time.Time, limit int) ([]*model.NotificationDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.NotificationDelivery
	for _, d := range s.deliveries {
		if d.CanRetry() && !d.NextRetryAt.After(now) && len(due) < limit {
			cp := *d
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *fakeStore) MarkSuccess(_ context.Context, id string, httpStatus int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deliveries[id]
	d.Status = model.DeliveryStatusSuccess
	d.AttemptCount++
	d.LastHTTPStatus = &httpStatus
	d.LastAttemptAt = &at
	return nil
}

func (s *fakeStore) MarkFailure(_ context.Context, id string, httpStatus *int, errMsg string, at, next time.Time, exhausted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deliveries[id]
	d.Status = model.DeliveryStatusFailed
	if exhausted {
		d.Status = model.DeliveryStatusExhausted
	}
	d.AttemptCount++
	d.LastHTTPStatus = httpStatus
	d.LastError = errMsg
	d.LastAttemptAt = &at
	d.NextRetryAt = next
	return nil
}

func (s *fakeStore) QueueDepth(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.deliveries {
		if !d.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) only(t *testing.T) *model.NotificationDelivery {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.deliveries, 1)
	for _, d := range s.deliveries {
		return d
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRequest() *model.PurchaseRequest {
	return &model.PurchaseRequest{
		ID:        "01J9Z3N6T3W2K8Q5V7X1Y4B6C8",
		Depositor: "홍길동",
		Email:     "reader@example.com",
		BookSlug:  "frontend01",
		CreatedAt: time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC),
	}
}

func TestNotifyPurchaseRequest_Delivered(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := newFakeStore()
	rec := metrics.NewInMemory()
	n := NewNotifier(Options{WebhookURL: srv.URL, Timeout: time.Second, MaxAttempts: 3}, store, testLogger(), rec)

	require.NoError(t, n.NotifyPurchaseRequest(context.Background(), sampleRequest(), "프론트엔드 면접"))

	var msg Message
	require.NoError(t, json.Unmarshal(body.Load().([]byte), &msg))
	assert.Contains(t, msg.Content, "홍길동")
	assert.Contains(t, msg.Content, "프론트엔드 면접 (frontend01)")
	assert.Empty(t, store.deliveries)
	assert.Equal(t, uint64(1), rec.Snapshot().Notifications["success"])
}

func TestNotifyPurchaseRequest_QueuesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newFakeStore()
	n := NewNotifier(Options{WebhookURL: srv.URL, Timeout: time.Second, MaxAttempts: 3}, store, testLogger(), nil)

	require.NoError(t, n.NotifyPurchaseRequest(context.Background(), sampleRequest(), ""))

	d := store.only(t)
	assert.Equal(t, model.DeliveryStatusFailed, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	require.NotNil(t, d.LastHTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, *d.LastHTTPStatus)
	assert.Equal(t, "01J9Z3N6T3W2K8Q5V7X1Y4B6C8", d.PurchaseRequestID)
	assert.True(t, d.NextRetryAt.After(*d.LastAttemptAt))
}

func TestNotifyPurchaseRequest_QueueFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.enqueueErr = assert.AnError
	n := NewNotifier(Options{WebhookURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, store, testLogger(), nil)

	err := n.NotifyPurchaseRequest(context.Background(), sampleRequest(), "")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNotifyPurchaseRequest_Disabled(t *testing.T) {
	store := newFakeStore()
	n := NewNotifier(Options{}, store, testLogger(), nil)

	assert.False(t, n.Enabled())
	require.NoError(t, n.NotifyPurchaseRequest(context.Background(), sampleRequest(), ""))
	assert.Empty(t, store.deliveries)
}

func TestWorker_RetriesUntilDelivered(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	rec := metrics.NewInMemory()
	n := NewNotifier(Options{WebhookURL: srv.URL, Timeout: time.Second, MaxAttempts: 5}, store, testLogger(), rec)
	require.NoError(t, n.NotifyPurchaseRequest(context.Background(), sampleRequest(), ""))

	clock := time.Now()
	n.now = func() time.Time { return clock }
	w := NewWorker(n, store, testLogger(), rec)

	// Not due yet.
	require.NoError(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, 1, store.only(t).AttemptCount)

	clock = clock.Add(time.Hour)
	require.NoError(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, model.DeliveryStatusFailed, store.only(t).Status)
	assert.Equal(t, 2, store.only(t).AttemptCount)

	healthy.Store(true)
	clock = clock.Add(time.Hour)
	require.NoError(t, w.ProcessOnce(context.Background()))

	d := store.only(t)
	assert.Equal(t, model.DeliveryStatusSuccess, d.Status)
	assert.Equal(t, 3, d.AttemptCount)
	assert.Equal(t, uint64(1), rec.Snapshot().Notifications["success"])
}

func TestWorker_ExhaustsAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore()
	n := NewNotifier(Options{WebhookURL: srv.URL, Timeout: time.Second, MaxAttempts: 2}, store, testLogger(), nil)
	require.NoError(t, n.NotifyPurchaseRequest(context.Background(), sampleRequest(), ""))

	clock := time.Now().Add(24 * time.Hour)
	n.now = func() time.Time { return clock }
	w := NewWorker(n, store, testLogger(), nil)

	require.NoError(t, w.ProcessOnce(context.Background()))
	d := store.only(t)
	assert.Equal(t, model.DeliveryStatusExhausted, d.Status)
	assert.True(t, d.IsTerminal())

	clock = clock.Add(48 * time.Hour)
	require.NoError(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, 2, store.only(t).AttemptCount)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	n := NewNotifier(Options{}, newFakeStore(), testLogger(), nil)
	w := NewWorker(n, newFakeStore(), testLogger(), nil)
	w.SetPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPurchaseRequestMessage_DefaultsMemo(t *testing.T) {
	msg := PurchaseRequestMessage(sampleRequest(), "")
	assert.Contains(t, msg.Content, "📝 메모: 없음")
	assert.Contains(t, msg.Content, "📚 전자책: frontend01\n")
	// 01:30 UTC is 10:30 in Seoul.
	assert.Contains(t, msg.Content, "2026-03-02 10:30:00")
}

func TestPurchaseRequestMessage_Truncates(t *testing.T) {
	req := sampleRequest()
	req.Memo = strings.Repeat("가", 3000)
	msg := PurchaseRequestMessage(req, "")
	assert.Equal(t, MaxContentLength, len([]rune(msg.Content)))
}
