package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/careerbooks/careerbooks/internal/model"
)

// statusRecorder remembers the status and body size a handler produced.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int64
	written bool
}

func wrapResponseWriter(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.written {
		return
	}
	sr.status, sr.written = code, true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Flush lets streamed downloads reach the client while they are copied.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// requestLog is filled in by inner middleware so the access line can name the
// caller. The auth middleware runs inside route groups and cannot hand its
// context back up the chain.
type requestLog struct {
	userID string
	scope  model.SessionScope
}

type requestLogKey struct{}

// noteCaller records the authenticated caller for the access log, if the
// request is being logged.
func noteCaller(ctx context.Context, a *model.AuthContext) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok && a != nil {
		rl.userID, rl.scope = a.UserID, a.Scope
	}
}

// Logger writes one access line per request. Only the path is logged: the
// query string of a download link may carry a session token, and headers are
// never logged.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			rec := wrapResponseWriter(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status_code", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if traceID := GetTraceID(r.Context()); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}
			if rl.userID != "" {
				attrs = append(attrs, slog.String("user_id", rl.userID), slog.String("scope", string(rl.scope)))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.status), "http request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
