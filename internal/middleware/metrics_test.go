package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careerbooks/careerbooks/internal/metrics"
)

type routeRecorder struct {
	metrics.NoopRecorder
	mu     sync.Mutex
	counts map[string]int
}

func (r *routeRecorder) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[fmt.Sprintf("%s %s %d", method, route, status)]++
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	recorder := &routeRecorder{counts: map[string]int{}}

	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Get("/books/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/books/frontend01", "/books/backend01", "/nowhere"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := recorder.counts["GET /books/{slug} 200"]; got != 2 {
		t.Errorf("GET /books/{slug} 200 = %d, want 2 (%v)", got, recorder.counts)
	}
	if got := recorder.counts["GET unmatched 404"]; got != 1 {
		t.Errorf("GET unmatched 404 = %d, want 1 (%v)", got, recorder.counts)
	}
}
