// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careerbooks/careerbooks/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731001

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// TruncateAll empties every application table. Migrations must already be applied.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE notification_deliveries, purchase_requests, entitlements, books, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewTestUser creates a user with sensible defaults. PasswordHash is left
// for the caller when a real login is needed.
func NewTestUser(t testing.TB, handle string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:        uuid.NewString(),
		Handle:    handle,
		Nickname:  "tester",
		Role:      model.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestBook creates a catalog entry with sensible defaults.
func NewTestBook(t testing.TB, slug string, titleIndex int) *model.Book {
	t.Helper()
	now := time.Now().UTC()
	return &model.Book{
		ID:            uuid.NewString(),
		Title:         "Test Book " + slug,
		Slug:          slug,
		Category:      "frontend",
		TitleIndex:    titleIndex,
		Price:         9900,
		OriginalPrice: 19900,
		FileRef:       "books/" + slug + ".pdf",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// UniqueHandle generates a handle that fits the 4-20 character rule.
func UniqueHandle(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + suffix
}

// UniqueSlug generates a unique book slug.
func UniqueSlug(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1_000_000_000)
}
