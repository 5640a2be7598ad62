package auth

import (
	"context"

	"github.com/careerbooks/careerbooks/internal/model"
)

type authKey struct{}

// ContextWithAuth attaches the verified session to ctx.
func ContextWithAuth(ctx context.Context, a *model.AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, a)
}

// AuthFromContext returns the session attached by the auth middleware, or nil
// on public routes.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	a, _ := ctx.Value(authKey{}).(*model.AuthContext)
	return a
}
