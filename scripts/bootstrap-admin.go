package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careerbooks/careerbooks/internal/auth"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
)

type output struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	Created  bool   `json:"created"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		handle      = flag.String("user-id", "admin", "Login handle of the administrator")
		nickname    = flag.String("nickname", "관리자", "Display name for a newly created administrator")
		password    = flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Password for a newly created administrator")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, repository.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, created, err := ensureAdmin(ctx, repo, strings.TrimSpace(*handle), *nickname, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	out := output{
		ID:       user.ID,
		UserID:   user.Handle,
		Nickname: user.Nickname,
		Role:     string(user.Role),
		Created:  created,
	}

	switch strings.ToLower(*format) {
	case "plain":
		verb := "promoted"
		if created {
			verb = "created"
		}
		fmt.Printf("%s %s (%s)\n", verb, out.UserID, out.ID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureAdmin promotes an existing account, or creates one when the handle
// is free. A password is only needed for creation.
func ensureAdmin(ctx context.Context, repo *repository.Repository, handle, nickname, password string) (*model.User, bool, error) {
	if handle == "" {
		return nil, false, errors.New("user-id is required")
	}

	existing, err := repo.GetUserByHandle(ctx, handle)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			if err := repo.SetUserRole(ctx, existing.ID, model.RoleAdmin); err != nil {
				return nil, false, fmt.Errorf("promote %s: %w", handle, err)
			}
			existing.Role = model.RoleAdmin
		}
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, fmt.Errorf("look up %s: %w", handle, err)
	}

	if len(password) < 8 {
		return nil, false, errors.New("a password of at least 8 characters is required to create an administrator")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Handle:       handle,
		PasswordHash: hash,
		Nickname:     nickname,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}
