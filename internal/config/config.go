// Package config provides application configuration management.
// Configuration is loaded from environment variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache (Redis)
	RedisURL     string        `env:"REDIS_URL,required"`
	BookCacheTTL time.Duration `env:"BOOK_CACHE_TTL" envDefault:"10m"`

	// Public URL of the API, used in emails and notifications
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"careerbooks"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	AdminSessionTTL time.Duration `env:"ADMIN_SESSION_TTL" envDefault:"1h"`

	// Catalog
	FreeBookSlug string `env:"FREE_BOOK_SLUG" envDefault:"frontend00"`

	// File storage (S3 compatible)
	S3Endpoint        string        `env:"S3_ENDPOINT" envDefault:""`
	S3Region          string        `env:"S3_REGION" envDefault:"ap-northeast-2"`
	S3Bucket          string        `env:"S3_BUCKET" envDefault:"careerbooks-ebooks"`
	S3AccessKeyID     string        `env:"S3_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string        `env:"S3_SECRET_ACCESS_KEY" envDefault:""`
	S3UsePathStyle    bool          `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	DownloadURLTTL    time.Duration `env:"DOWNLOAD_URL_TTL" envDefault:"15m"`
	FileHostTimeout   time.Duration `env:"FILE_HOST_TIMEOUT" envDefault:"30s"`

	// Description store (MinIO)
	MinioEndpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"careerbooks-descriptions"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// Discord notifications for manual bank transfers
	DiscordWebhookURL    string        `env:"DISCORD_WEBHOOK_URL" envDefault:""`
	NotifyTimeout        time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	NotifyMaxAttempts    int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"6"`
	NotifyWorkerInterval time.Duration `env:"NOTIFY_WORKER_INTERVAL" envDefault:"30s"`
	NotifySigningSecret  string        `env:"NOTIFY_SIGNING_SECRET" envDefault:""`

	// SMTP for ebook delivery
	SMTPHost          string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort          int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername      string `env:"SMTP_USERNAME" envDefault:""`
	SMTPPassword      string `env:"SMTP_PASSWORD" envDefault:""`
	MailFrom          string `env:"MAIL_FROM" envDefault:"CareerBooks <no-reply@careerbooks.kr>"`
	MailMaxAttachment int64  `env:"MAIL_MAX_ATTACHMENT" envDefault:"20971520"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitAuthRPM int  `env:"RATE_LIMIT_AUTH_RPM" envDefault:"20"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"5"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://careerbooks.kr,https://admin.careerbooks.kr")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

const defaultJWTSecret = "dev-secret-change-me"

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.SessionTTL <= 0 || c.AdminSessionTTL <= 0 {
		return errors.New("session lifetimes must be positive")
	}
	if c.NotifyMaxAttempts < 1 {
		return errors.New("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Load reads optional .env files, parses environment variables and returns a Config.
// Variables already present in the environment win over .env values.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads .env.<APP_ENV> and then .env, skipping files that do not exist.
func loadDotEnv() error {
	files := []string{".env"}
	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		files = append([]string{".env." + appEnv}, files...)
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}
