//go:build integration

package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/careerbooks/careerbooks/internal/cache"
	"github.com/careerbooks/careerbooks/internal/testutil"
)

func newRedisCache(t *testing.T) *cache.Cache {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	ctx := context.Background()
	cacheClient, err := cache.New(ctx, redisURL, time.Minute)
	if err != nil {
		t.Fatalf("failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { _ = cacheClient.Close() })

	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("failed to flush Redis: %v", err)
	}
	return cacheClient
}

// TestIPRateLimitConcurrency verifies the token bucket under concurrent load.
func TestIPRateLimitConcurrency(t *testing.T) {
	ctx := context.Background()
	cacheClient := newRedisCache(t)

	testIP := "192.168.1.100"
	rpm := 10
	burst := 3

	var allowed, rejected int64
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := cacheClient.CheckIPRateLimit(ctx, "auth", testIP, rpm, burst)
			if err != nil {
				t.Errorf("CheckIPRateLimit error: %v", err)
				return
			}
			if result.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}

	wg.Wait()

	t.Logf("IP rate limit: %d allowed, %d rejected", allowed, rejected)

	if allowed > int64(burst+1) {
		t.Errorf("Too many requests allowed: %d (expected <= %d)", allowed, burst+1)
	}
	if rejected == 0 {
		t.Error("Expected some requests to be rejected")
	}
}

// TestIPRateLimit_ScopesAreIndependent verifies that exhausting the auth bucket
// leaves the purchase request bucket untouched.
func TestIPRateLimit_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	cacheClient := newRedisCache(t)

	for i := 0; i < 3; i++ {
		_, _ = cacheClient.CheckIPRateLimit(ctx, "auth", "10.0.0.9", 1, 1)
	}

	result, err := cacheClient.CheckIPRateLimit(ctx, "purchase_requests", "10.0.0.9", 1, 1)
	if err != nil {
		t.Fatalf("CheckIPRateLimit error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected a fresh bucket for a different scope")
	}
}

func TestRateLimitIP_RedisBacked(t *testing.T) {
	cacheClient := newRedisCache(t)

	mw := RateLimitIP(RateLimitConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter: cacheClient,
		Enabled: true,
		Scope:   "auth",
		RPM:     1,
		Burst:   2,
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4567"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request to be limited, got %d", codes[2])
	}
}
