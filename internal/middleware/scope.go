package middleware

import (
	"log/slog"
	"net/http"

	"github.com/careerbooks/careerbooks/internal/auth"
)

// RequireAdmin returns middleware that admits only admin-scoped sessions of
// admin users. Must be applied after Auth middleware.
// A user-scoped token held by an admin is refused; the admin must log in again.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeAuthError(w)
				return
			}

			if !authCtx.IsAdmin() {
				logger.Warn("admin access denied",
					slog.String("user_id", authCtx.UserID),
					slog.String("role", string(authCtx.Role)),
					slog.String("scope", string(authCtx.Scope)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
