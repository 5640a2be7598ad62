package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/careerbooks/careerbooks/internal/handler"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Base             *handler.Handler
	Health           *handler.HealthHandler
	Auth             *handler.AuthHandler
	Books            *handler.BookHandler
	Downloads        *handler.DownloadHandler
	PurchaseRequests *handler.PurchaseRequestHandler
	Admin            *handler.AdminHandler
}

// RouterConfig carries the cross-cutting dependencies of the middleware chain.
type RouterConfig struct {
	Logger   *slog.Logger
	Tokens   middleware.TokenParser
	Limiter  middleware.IPRateLimiter
	Recorder metrics.Recorder
	// MetricsHandler serves /metrics; nil leaves the route unmounted.
	MetricsHandler http.Handler

	IsDevelopment      bool
	CORSAllowedOrigins []string
	MaxRequestBodySize int64

	RateLimitEnabled bool
	RateLimitAuthRPM int
	RateLimitBurst   int

	// TrustProxyHeaders rewrites RemoteAddr from forwarding headers. Without
	// it a caller could pick its own rate limit bucket.
	TrustProxyHeaders bool
}

// NewRouter builds the storefront API router.
func NewRouter(cfg RouterConfig, h Handlers) *chi.Mux {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoop()
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
	r.Use(middleware.Metrics(cfg.Recorder))

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	r.Get("/api/ping", h.Base.Ping)
	r.Get("/slides", h.Books.Slides)

	authenticated := middleware.Auth(middleware.AuthConfig{Logger: cfg.Logger, Tokens: cfg.Tokens})
	slug := middleware.SlugParam("slug")
	limited := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  cfg.Logger,
			Limiter: cfg.Limiter,
			Enabled: cfg.RateLimitEnabled && cfg.Limiter != nil,
			Scope:   scope,
			RPM:     cfg.RateLimitAuthRPM,
			Burst:   cfg.RateLimitBurst,
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(limited("auth"))
		r.Post("/signup", h.Auth.Signup)
		r.Post("/login", h.Auth.Login)
	})

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.Books.List)
		r.Get("/popular", h.Books.Popular)
		r.Get("/category/{category}", h.Books.ListByCategory)
		r.With(authenticated).Get("/my-purchases", h.Books.MyPurchases)

		r.Route("/{slug}", func(r chi.Router) {
			r.Use(slug)
			r.Get("/", h.Books.Get)
			r.Get("/description", h.Books.Description)
			r.With(authenticated).Get("/access", h.Books.Access)
			r.With(authenticated).Post("/purchase", h.Books.Purchase)
		})
	})

	// The token may arrive as ?token= for plain links, so the download
	// service authenticates instead of the Auth middleware.
	r.With(slug).Get("/downloads/{slug}", h.Downloads.Download)

	r.With(limited("purchase_requests")).Post("/purchase-requests", h.PurchaseRequests.Create)

	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RequireAdmin(cfg.Logger))

		r.Get("/books", h.Admin.ListBooks)
		r.Post("/books", h.Admin.CreateBook)
		r.With(slug).Put("/books/{slug}", h.Admin.UpdateBook)
		r.With(slug).Delete("/books/{slug}", h.Admin.DeleteBook)
		r.With(slug).Put("/books/{slug}/description", h.Admin.PutDescription)
		r.Get("/users", h.Admin.ListUsers)
		r.Get("/purchase-requests", h.Admin.ListPurchaseRequests)
		r.Get("/notifications", h.Admin.ListNotifications)
		r.Post("/confirm-purchase", h.Admin.ConfirmPurchase)
		r.Post("/send-ebook", h.Admin.SendEbook)
	})

	r.NotFound(h.Base.NotFound)
	r.MethodNotAllowed(h.Base.MethodNotAllowed)

	return r
}
