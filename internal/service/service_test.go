package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/service/servicetest"
)

const testFreeSlug = "frontend00"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store     *servicetest.Store
	cache     *servicetest.Cache
	descs     *servicetest.Descriptions
	files     *servicetest.Files
	notifier  *servicetest.Notifier
	mailer    *servicetest.Mailer
	outbox    *servicetest.Deliveries
	metrics   *metrics.InMemoryRecorder
	tokens    *auth.TokenIssuer
	auth      *AuthService
	catalog   *CatalogService
	ledger    *LedgerService
	downloads *DownloadService
	requests  *PurchaseRequestService
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    servicetest.NewStore(),
		cache:    servicetest.NewCache(),
		descs:    servicetest.NewDescriptions(),
		files:    &servicetest.Files{Body: "%PDF-1.7 test"},
		notifier: &servicetest.Notifier{},
		mailer:   &servicetest.Mailer{Enabled: true, MaxSize: 1024},
		outbox:   &servicetest.Deliveries{},
		metrics:  metrics.NewInMemory(),
		tokens: auth.NewTokenIssuer(auth.SessionConfig{
			Secret:   []byte("test-secret-0123456789"),
			Issuer:   "careerbooks",
			UserTTL:  2 * time.Hour,
			AdminTTL: time.Hour,
		}),
	}

	log := testLogger()
	env.auth = NewAuthService(env.store, env.tokens, log, env.metrics)
	env.catalog = NewCatalogService(env.store, env.cache, env.descs, log, env.metrics)
	env.ledger = NewLedgerService(env.store, env.cache, log, env.metrics)
	env.downloads = NewDownloadService(env.tokens, env.catalog, env.store, env.files, testFreeSlug, log, env.metrics)
	env.requests = NewPurchaseRequestService(env.store, env.catalog, env.notifier, log, env.metrics)
	env.admin = NewAdminService(env.store, env.ledger, env.catalog, env.files, env.mailer, env.outbox, log)

	for i, slug := range []string{"frontend00", "frontend01", "backend01"} {
		category := "frontend"
		if slug == "backend01" {
			category = "backend"
		}
		_, err := env.catalog.CreateBook(context.Background(), BookInput{
			Title:         "Book " + slug,
			Slug:          slug,
			Category:      category,
			TitleIndex:    i,
			Price:         9900,
			OriginalPrice: 19800,
			FileRef:       "books/" + slug + ".pdf",
		})
		require.NoError(t, err)
	}
	return env
}

// signupAndLogin creates a user and returns its id and session token.
func (e *testEnv) signupAndLogin(t *testing.T, handle string) (string, string) {
	t.Helper()
	ctx := context.Background()

	user, err := e.auth.Signup(ctx, SignupInput{Handle: handle, Password: "secret123", Nickname: "닉네임"})
	require.NoError(t, err)

	res, err := e.auth.Login(ctx, handle, "secret123")
	require.NoError(t, err)
	return user.ID, res.Token
}

func (e *testEnv) promote(t *testing.T, userID string) {
	t.Helper()
	e.store.SetRole(userID, model.RoleAdmin)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
