// Package contract validates API responses against the OpenAPI document.
package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/go-chi/chi/v5"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/handler"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/server"
	"github.com/careerbooks/careerbooks/internal/service"
	"github.com/careerbooks/careerbooks/internal/service/servicetest"
)

const freeSlug = "frontend00"

// specPath returns the OpenAPI document location, overridable for CI layouts.
func specPath() string {
	if p := os.Getenv("OPENAPI_SPEC_PATH"); p != "" {
		return p
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, "..", "..", "docs", "api", "openapi.yaml")
}

// loadSpec loads and validates the OpenAPI document.
func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()

	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromFile(specPath())
	if err != nil {
		t.Fatalf("Failed to load OpenAPI spec: %v", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI spec validation failed: %v", err)
	}
	return spec
}

// contractEnv is an in-process API backed by in-memory fakes.
type contractEnv struct {
	srv    *httptest.Server
	mux    *chi.Mux
	store  *servicetest.Store
	router routers.Router
	client *http.Client
}

func newContractEnv(t *testing.T) *contractEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := servicetest.NewStore()
	bookCache := servicetest.NewCache()
	files := &servicetest.Files{Body: "%PDF-1.7 contract"}
	prom := metrics.NewPrometheus("contract")
	tokens := auth.NewTokenIssuer(auth.SessionConfig{
		Secret:   []byte("contract-secret-0123456789"),
		Issuer:   "careerbooks",
		UserTTL:  2 * time.Hour,
		AdminTTL: time.Hour,
	})

	authSvc := service.NewAuthService(store, tokens, log, prom)
	catalog := service.NewCatalogService(store, bookCache, servicetest.NewDescriptions(), log, prom)
	ledger := service.NewLedgerService(store, bookCache, log, prom)
	downloads := service.NewDownloadService(tokens, catalog, store, files, freeSlug, log, prom)
	requests := service.NewPurchaseRequestService(store, catalog, &servicetest.Notifier{}, log, prom)
	admin := service.NewAdminService(store, ledger, catalog, files,
		&servicetest.Mailer{Enabled: true, MaxSize: 1024}, &servicetest.Deliveries{}, log)

	for i, slug := range []string{freeSlug, "frontend01", "backend01"} {
		_, err := catalog.CreateBook(context.Background(), service.BookInput{
			Title:         "Book " + slug,
			Slug:          slug,
			Category:      strings.TrimRight(slug, "0123456789"),
			TitleIndex:    i,
			Price:         9900,
			OriginalPrice: 19800,
			FileRef:       "books/" + slug + ".pdf",
		})
		if err != nil {
			t.Fatalf("seed %s: %v", slug, err)
		}
	}

	mux := server.NewRouter(server.RouterConfig{
		Logger:             log,
		Tokens:             tokens,
		Recorder:           prom,
		MetricsHandler:     prom.Handler(),
		IsDevelopment:      true,
		MaxRequestBodySize: 1 << 20,
	}, server.Handlers{
		Base:             handler.New(),
		Health:           handler.NewHealthHandler(nil, nil, nil),
		Auth:             handler.NewAuthHandler(authSvc, log),
		Books:            handler.NewBookHandler(catalog, ledger, log),
		Downloads:        handler.NewDownloadHandler(downloads, log),
		PurchaseRequests: handler.NewPurchaseRequestHandler(requests, log),
		Admin:            handler.NewAdminHandler(catalog, admin, requests, log),
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	spec := loadSpec(t)
	spec.Servers = openapi3.Servers{{URL: srv.URL}}
	router, err := gorillamux.NewRouter(spec)
	if err != nil {
		t.Fatalf("Failed to create router from spec: %v", err)
	}

	return &contractEnv{
		srv:    srv,
		mux:    mux,
		store:  store,
		router: router,
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// call performs a request and validates the response against the document.
// It returns the status code and raw body.
func (e *contractEnv) call(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	route, pathParams, err := e.router.FindRoute(req)
	if err != nil {
		t.Fatalf("%s %s is not documented: %v", method, path, err)
	}

	opts := &openapi3filter.Options{IncludeResponseStatus: true}
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
			Options:    opts,
		},
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Options: opts,
	}
	input.SetBodyBytes(respBody)

	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("%s %s (%d) violates the contract: %v\nbody: %s", method, path, resp.StatusCode, err, respBody)
	}
	return resp.StatusCode, respBody
}

func (e *contractEnv) login(t *testing.T, handle string) string {
	t.Helper()

	status, body := e.call(t, http.MethodPost, "/auth/login", "", map[string]string{
		"userId": handle, "password": "secret123",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", handle, status, body)
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return res.Token
}

// signup registers an account and returns its internal id and a session token.
func (e *contractEnv) signup(t *testing.T, handle string) (string, string) {
	t.Helper()

	status, body := e.call(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"userId": handle, "password": "secret123", "nickname": "독자",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup %s: status %d: %s", handle, status, body)
	}
	var res struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	return res.User.ID, e.login(t, handle)
}

func (e *contractEnv) adminToken(t *testing.T) string {
	t.Helper()

	id, _ := e.signup(t, "operator")
	e.store.SetRole(id, model.RoleAdmin)
	return e.login(t, "operator")
}

// TestOpenAPISpecValid ensures the OpenAPI document is valid.
func TestOpenAPISpecValid(t *testing.T) {
	spec := loadSpec(t)

	if spec.Info == nil || spec.Info.Title != "CareerBooks API" {
		t.Errorf("unexpected info block: %+v", spec.Info)
	}
	if _, ok := spec.Components.Schemas["ErrorResponse"]; !ok {
		t.Error("ErrorResponse schema is missing")
	}
}

// TestOpenAPICoversRoutes checks that every mounted route is documented and
// every documented path is mounted.
func TestOpenAPICoversRoutes(t *testing.T) {
	env := newContractEnv(t)
	spec := loadSpec(t)

	mounted := map[string]bool{}
	err := chi.Walk(env.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route != "/" {
			route = strings.TrimSuffix(route, "/")
		}
		mounted[method+" "+route] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk routes: %v", err)
	}

	documented := map[string]bool{}
	for path, item := range spec.Paths.Map() {
		for method := range item.Operations() {
			documented[method+" "+path] = true
		}
	}

	var missing, stale []string
	for r := range mounted {
		if !documented[r] {
			missing = append(missing, r)
		}
	}
	for r := range documented {
		if !mounted[r] {
			stale = append(stale, r)
		}
	}
	sort.Strings(missing)
	sort.Strings(stale)

	if len(missing) > 0 {
		t.Errorf("routes without documentation: %v", missing)
	}
	if len(stale) > 0 {
		t.Errorf("documented paths that are not mounted: %v", stale)
	}
}

func TestContract_PublicEndpoints(t *testing.T) {
	env := newContractEnv(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/ping", http.StatusOK},
		{http.MethodGet, "/slides", http.StatusOK},
		{http.MethodGet, "/books", http.StatusOK},
		{http.MethodGet, "/books?page=1&limit=2", http.StatusOK},
		{http.MethodGet, "/books?category=backend", http.StatusOK},
		{http.MethodGet, "/books/popular", http.StatusOK},
		{http.MethodGet, "/books/category/frontend", http.StatusOK},
		{http.MethodGet, "/books/frontend01", http.StatusOK},
		{http.MethodGet, "/books/missing-book", http.StatusNotFound},
		{http.MethodGet, "/books/frontend01/description", http.StatusOK},
		{http.MethodGet, "/books/my-purchases", http.StatusUnauthorized},
		{http.MethodGet, "/downloads/" + freeSlug, http.StatusFound},
		{http.MethodGet, "/downloads/frontend01", http.StatusUnauthorized},
		{http.MethodGet, "/downloads/frontend01?token=not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, body := env.call(t, tt.method, tt.path, "", nil)
			if status != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestContract_AuthErrors(t *testing.T) {
	env := newContractEnv(t)
	env.signup(t, "reader01")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"duplicate handle", "/auth/signup", map[string]string{"userId": "reader01", "password": "secret123", "nickname": "n"}, http.StatusConflict},
		{"short password", "/auth/signup", map[string]string{"userId": "reader02", "password": "x", "nickname": "n"}, http.StatusBadRequest},
		{"wrong password", "/auth/login", map[string]string{"userId": "reader01", "password": "wrong-pass"}, http.StatusUnauthorized},
		{"unknown handle", "/auth/login", map[string]string{"userId": "nobody", "password": "secret123"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.call(t, http.MethodPost, tt.path, "", tt.body)
			if status != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestContract_ReaderFlow(t *testing.T) {
	env := newContractEnv(t)
	_, token := env.signup(t, "reader01")

	steps := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodGet, "/books/frontend01/access", nil, http.StatusOK},
		{http.MethodGet, "/downloads/frontend01?token=" + token, nil, http.StatusForbidden},
		{http.MethodPost, "/books/frontend01/purchase", nil, http.StatusOK},
		{http.MethodPost, "/books/frontend01/purchase", nil, http.StatusConflict},
		{http.MethodPost, "/books/missing-book/purchase", nil, http.StatusNotFound},
		{http.MethodGet, "/books/my-purchases", nil, http.StatusOK},
		{http.MethodGet, "/downloads/frontend01?token=" + token, nil, http.StatusFound},
		{http.MethodPost, "/purchase-requests", map[string]string{
			"depositor": "홍길동", "email": "reader@example.com", "slug": "backend01",
		}, http.StatusCreated},
		{http.MethodPost, "/purchase-requests", map[string]string{
			"depositor": "", "email": "reader@example.com", "slug": "backend01",
		}, http.StatusBadRequest},
		{http.MethodGet, "/admin/users", nil, http.StatusForbidden},
	}

	for _, s := range steps {
		status, body := env.call(t, s.method, s.path, token, s.body)
		if status != s.want {
			t.Fatalf("%s %s: expected %d, got %d: %s", s.method, s.path, s.want, status, body)
		}
	}
}

func TestContract_AdminFlow(t *testing.T) {
	env := newContractEnv(t)
	env.signup(t, "buyer01")
	token := env.adminToken(t)

	book := map[string]any{
		"title":         "Book database01",
		"slug":          "database01",
		"category":      "database",
		"titleIndex":    10,
		"price":         12900,
		"originalPrice": 25800,
		"fileRef":       "books/database01.pdf",
		"fileName":      "database01.pdf",
	}

	steps := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodGet, "/admin/books", nil, http.StatusOK},
		{http.MethodPost, "/admin/books", book, http.StatusCreated},
		{http.MethodPost, "/admin/books", book, http.StatusConflict},
		{http.MethodPut, "/admin/books/database01", book, http.StatusOK},
		{http.MethodPut, "/admin/books/database01/description", map[string]string{"content": "# 목차"}, http.StatusOK},
		{http.MethodGet, "/admin/users", nil, http.StatusOK},
		{http.MethodGet, "/admin/purchase-requests?page=1&limit=10", nil, http.StatusOK},
		{http.MethodGet, "/admin/notifications?status=pending,failed", nil, http.StatusOK},
		{http.MethodPost, "/admin/confirm-purchase", map[string]string{"userId": "buyer01", "slug": "database01"}, http.StatusOK},
		{http.MethodPost, "/admin/confirm-purchase", map[string]string{"userId": "ghost", "slug": "database01"}, http.StatusNotFound},
		{http.MethodPost, "/admin/send-ebook", map[string]string{"email": "buyer@example.com", "slug": "database01"}, http.StatusOK},
		{http.MethodDelete, "/admin/books/database01", nil, http.StatusNoContent},
		{http.MethodDelete, "/admin/books/database01", nil, http.StatusNotFound},
	}

	for _, s := range steps {
		status, body := env.call(t, s.method, s.path, token, s.body)
		if status != s.want {
			t.Fatalf("%s %s: expected %d, got %d: %s", s.method, s.path, s.want, status, body)
		}
	}
}
