// Package main is the entrypoint for the CareerBooks API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	_ "github.com/lib/pq"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/cache"
	"github.com/careerbooks/careerbooks/internal/config"
	"github.com/careerbooks/careerbooks/internal/handler"
	"github.com/careerbooks/careerbooks/internal/mail"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/notify"
	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/server"
	"github.com/careerbooks/careerbooks/internal/service"
	"github.com/careerbooks/careerbooks/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server error", "error", sanitizeError(err, cfg.DatabaseURL, cfg.RedisURL))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	// Until the shutdown hooks take over, an early return closes what is open.
	var pending releaser
	defer pending.release()
	pending.add(repo.Close)

	// The notification outbox uses database/sql so it can share pq.Array
	// handling with the migrations driver.
	outboxDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open outbox db: %w", err)
	}
	pending.add(func() { _ = outboxDB.Close() })
	outboxDB.SetMaxOpenConns(2)

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cfg.BookCacheTTL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	pending.add(func() { _ = cacheClient.Close() })
	logger.Info("connected to Redis")

	files, err := storage.NewFileStore(ctx, storage.FileStoreConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
		PresignTTL:      cfg.DownloadURLTTL,
		HTTPTimeout:     cfg.FileHostTimeout,
	})
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	descriptions, err := storage.NewDescriptionStore(storage.DescriptionStoreConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		return fmt.Errorf("description store: %w", err)
	}
	if err := descriptions.EnsureBucket(ctx); err != nil {
		// Descriptions are optional content; readiness reports the outage.
		logger.Warn("description bucket unavailable", "error", err)
	}

	if cfg.DiscordWebhookURL != "" {
		if err := notify.ValidateWebhookURL(cfg.DiscordWebhookURL); err != nil {
			return fmt.Errorf("DISCORD_WEBHOOK_URL: %w", err)
		}
	}

	recorder := metrics.NewPrometheus("careerbooks")
	tokens := auth.NewTokenIssuer(auth.SessionConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		UserTTL:  cfg.SessionTTL,
		AdminTTL: cfg.AdminSessionTTL,
	})

	outbox := notify.NewRepository(outboxDB)
	notifier := notify.NewNotifier(notify.Options{
		WebhookURL:    cfg.DiscordWebhookURL,
		Timeout:       cfg.NotifyTimeout,
		MaxAttempts:   cfg.NotifyMaxAttempts,
		SigningSecret: cfg.NotifySigningSecret,
	}, outbox, logger, recorder)
	worker := notify.NewWorker(notifier, outbox, logger, recorder)
	worker.SetPollInterval(cfg.NotifyWorkerInterval)

	mailer, err := mail.NewSender(mail.Config{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		From:          cfg.MailFrom,
		MaxAttachment: cfg.MailMaxAttachment,
	}, logger, recorder)
	if err != nil {
		return fmt.Errorf("mail sender: %w", err)
	}

	authSvc := service.NewAuthService(repo, tokens, logger, recorder)
	catalog := service.NewCatalogService(repo, cacheClient, descriptions, logger, recorder)
	ledger := service.NewLedgerService(repo, cacheClient, logger, recorder)
	downloads := service.NewDownloadService(tokens, catalog, repo, files, cfg.FreeBookSlug, logger, recorder)
	requests := service.NewPurchaseRequestService(repo, catalog, notifier, logger, recorder)
	admin := service.NewAdminService(repo, ledger, catalog, files, mailer, outbox, logger)

	router := server.NewRouter(server.RouterConfig{
		Logger:             logger,
		Tokens:             tokens,
		Limiter:            cacheClient,
		Recorder:           recorder,
		MetricsHandler:     recorder.Handler(),
		IsDevelopment:      cfg.IsDevelopment(),
		CORSAllowedOrigins: cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RateLimitEnabled:   cfg.RateLimitEnabled,
		RateLimitAuthRPM:   cfg.RateLimitAuthRPM,
		RateLimitBurst:     cfg.RateLimitBurst,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	}, server.Handlers{
		Base:             handler.New(),
		Health:           handler.NewHealthHandler(repo, cacheClient, descriptions),
		Auth:             handler.NewAuthHandler(authSvc, logger),
		Books:            handler.NewBookHandler(catalog, ledger, logger),
		Downloads:        handler.NewDownloadHandler(downloads, logger),
		PurchaseRequests: handler.NewPurchaseRequestHandler(requests, logger),
		Admin:            handler.NewAdminHandler(catalog, admin, requests, logger),
	})

	srv := server.New(router, server.Options{
		Addr:            fmt.Sprintf(":%d", cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, closed last.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("outbox-db", func(context.Context) error {
		return outboxDB.Close()
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	pending.disarm()

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notification worker exited", "error", err)
		}
	}()
	srv.OnShutdown("notify-worker", func(ctx context.Context) error {
		stopWorker()
		select {
		case <-workerDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"notifications", notifier.Enabled(),
		"mail", mailer.Configured(),
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "careerbooks-api")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL strips the password from a connection URL for logging.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			username = "redacted"
		}
		parsed.User = url.User(username)
	}
	return parsed.String()
}

// sanitizeError removes connection secrets from driver error messages.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}
	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}

// releaser runs cleanup functions in reverse order of registration.
type releaser struct {
	fns []func()
}

func (r *releaser) add(fn func()) {
	r.fns = append(r.fns, fn)
}

func (r *releaser) release() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}
	r.fns = nil
}

// disarm hands ownership to someone else; release becomes a no-op.
func (r *releaser) disarm() {
	r.fns = nil
}
