package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerbooks/careerbooks/internal/model"
)

func newTestIssuer(secret string) *TokenIssuer {
	return NewTokenIssuer(SessionConfig{
		Secret:   []byte(secret),
		Issuer:   "careerbooks",
		UserTTL:  2 * time.Hour,
		AdminTTL: time.Hour,
	})
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer("0123456789abcdef0123")
	user := &model.User{ID: "8c1f0c1e-0000-4000-8000-000000000001", Handle: "reader", Role: model.RoleUser}

	token, expiresAt, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), expiresAt, 5*time.Second)

	ac, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, ac.UserID)
	assert.Equal(t, "reader", ac.Handle)
	assert.Equal(t, model.RoleUser, ac.Role)
	assert.Equal(t, model.ScopeUser, ac.Scope)
	assert.False(t, ac.IsAdmin())
}

func TestTokenIssuer_AdminScopeIsShorterLived(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer("0123456789abcdef0123")
	admin := &model.User{ID: "admin-1", Handle: "admin", Role: model.RoleAdmin}

	token, expiresAt, err := issuer.Issue(admin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	ac, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, model.ScopeAdmin, ac.Scope)
	assert.True(t, ac.IsAdmin())
}

func TestTokenIssuer_Rejections(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer("0123456789abcdef0123").WithClock(func() time.Time { return base })
	user := &model.User{ID: "user-1", Handle: "reader", Role: model.RoleUser}

	valid, _, err := issuer.Issue(user)
	require.NoError(t, err)

	otherKey, _, err := newTestIssuer("another-secret-value-1").WithClock(func() time.Time { return base }).Issue(user)
	require.NoError(t, err)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "careerbooks",
			ExpiresAt: jwt.NewNumericDate(base.Add(time.Hour)),
		},
		Role:  model.RoleUser,
		Scope: model.ScopeAdmin,
	})
	scopeEscalation, err := forged.SignedString([]byte("0123456789abcdef0123"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "careerbooks", ExpiresAt: jwt.NewNumericDate(base.Add(time.Hour))},
		Role:             model.RoleUser,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"missing", "", base},
		{"malformed", "not.a.jwt", base},
		{"wrong key", otherKey, base},
		{"expired", valid, base.Add(2*time.Hour + time.Second)},
		{"admin scope without admin role", scopeEscalation, base},
		{"none algorithm", noneAlg, base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			_, err := issuer.WithClock(func() time.Time { return at }).Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenIssuer_ValidUntilExpiry(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer("0123456789abcdef0123").WithClock(func() time.Time { return base })

	token, _, err := issuer.Issue(&model.User{ID: "user-1", Role: model.RoleUser})
	require.NoError(t, err)

	_, err = issuer.WithClock(func() time.Time { return base.Add(2*time.Hour - time.Second) }).Parse(token)
	assert.NoError(t, err)
}
