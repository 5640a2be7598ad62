package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/careerbooks/careerbooks/internal/model"
)

// ErrInvalidToken covers every reason a session token is rejected:
// bad signature, wrong algorithm, expired, malformed or missing claims.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the JWT payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Handle string             `json:"handle"`
	Role   model.Role         `json:"role"`
	Scope  model.SessionScope `json:"scope"`
}

// SessionConfig configures the TokenIssuer.
type SessionConfig struct {
	Secret   []byte
	Issuer   string
	UserTTL  time.Duration
	AdminTTL time.Duration
}

// TokenIssuer mints and validates stateless HS256 session tokens.
// One issuer serves every scope; the scope only decides the lifetime.
type TokenIssuer struct {
	cfg SessionConfig
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(cfg SessionConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *i
	cp.now = now
	return &cp
}

// TTL returns the lifetime of a token with the given scope.
func (i *TokenIssuer) TTL(scope model.SessionScope) time.Duration {
	if scope == model.ScopeAdmin {
		return i.cfg.AdminTTL
	}
	return i.cfg.UserTTL
}

// Issue mints a token for user. The scope follows the user's role.
func (i *TokenIssuer) Issue(user *model.User) (string, time.Time, error) {
	scope := model.ScopeForRole(user.Role)
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.TTL(scope))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Handle: user.Handle,
		Role:   user.Role,
		Scope:  scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns the identity it carries.
// Any failure yields ErrInvalidToken so callers treat it like a missing token.
func (i *TokenIssuer) Parse(tokenString string) (*model.AuthContext, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.cfg.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || !claims.Role.IsValid() {
		return nil, ErrInvalidToken
	}
	// An admin scope is only honored for an admin role.
	if claims.Scope == model.ScopeAdmin && claims.Role != model.RoleAdmin {
		return nil, ErrInvalidToken
	}

	return &model.AuthContext{
		UserID:    claims.Subject,
		Handle:    claims.Handle,
		Role:      claims.Role,
		Scope:     claims.Scope,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
