package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/metrics"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
)

// Handle rule: 3-32 chars, alphanumeric plus underscore and hyphen.
var handleRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	maxNicknameLength = 50
)

// AuthService handles signup and login.
type AuthService struct {
	users   UserStore
	tokens  *auth.TokenIssuer
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens *auth.TokenIssuer, logger *slog.Logger, recorder metrics.Recorder) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		logger:  logger.With("component", "service.auth"),
		metrics: recorder,
		now:     time.Now,
	}
}

// SignupInput defines input for creating an account.
type SignupInput struct {
	Handle   string
	Password string
	Nickname string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      model.UserProfile
}

// Signup creates a regular user account.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*model.User, error) {
	input.Handle = strings.TrimSpace(input.Handle)
	input.Nickname = strings.TrimSpace(input.Nickname)
	if err := validateSignup(input); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Handle:       input.Handle,
		PasswordHash: hash,
		Nickname:     input.Nickname,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrHandleExists) {
			return nil, ErrDuplicateHandle
		}
		return nil, err
	}

	s.metrics.IncSignup()
	s.logger.Info("user_signed_up", "user_id", user.ID, "handle", user.Handle)
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown handles and
// wrong passwords both return ErrInvalidCredentials; the reason is only logged.
func (s *AuthService) Login(ctx context.Context, handle, password string) (*LoginResult, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || password == "" {
		return nil, invalid("userId", "user ID and password are required")
	}

	user, err := s.users.GetUserByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.loginFailed(handle, "identity not found")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		s.loginFailed(handle, "unreadable hash")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.loginFailed(handle, "credential mismatch")
		return nil, ErrInvalidCredentials
	}

	if auth.IsLegacyHash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.IncLogin("success")
	s.logger.Info("user_logged_in", "user_id", user.ID, "scope", model.ScopeForRole(user.Role))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user.Profile()}, nil
}

func (s *AuthService) loginFailed(handle, reason string) {
	s.metrics.IncLogin("failure")
	s.logger.Warn("login_failed", "handle", handle, "reason", reason)
}

// upgradeHash replaces a legacy bcrypt hash after a successful login.
// Failures leave the legacy hash in place.
func (s *AuthService) upgradeHash(ctx context.Context, user *model.User, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Warn("password rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	s.logger.Info("legacy password hash upgraded", "user_id", user.ID)
}

func validateSignup(input SignupInput) error {
	if !handleRegex.MatchString(input.Handle) {
		return invalid("userId", "must be 3-32 letters, digits, '_' or '-'")
	}
	if n := utf8.RuneCountInString(input.Password); n < minPasswordLength || n > maxPasswordLength {
		return invalid("password", fmt.Sprintf("must be %d-%d characters", minPasswordLength, maxPasswordLength))
	}
	if n := utf8.RuneCountInString(input.Nickname); n == 0 || n > maxNicknameLength {
		return invalid("nickname", fmt.Sprintf("must be 1-%d characters", maxNicknameLength))
	}
	return nil
}
