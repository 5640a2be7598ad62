package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a handler panic into the INTERNAL_ERROR body. If the
// handler had already started the response, as a streamed download does, the
// connection is aborted instead so the client sees a truncated transfer rather
// than a JSON error spliced into the file.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := wrapResponseWriter(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("route", routePattern(r)),
					slog.String("path", r.URL.Path),
					slog.Any("panic", p),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				)

				if rec.written {
					panic(http.ErrAbortHandler)
				}
				writeError(rec, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
