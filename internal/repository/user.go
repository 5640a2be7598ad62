package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/careerbooks/careerbooks/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrHandleExists = errors.New("handle already exists")
)

const userColumns = `id, handle, password_hash, nickname, role, created_at, updated_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, handle, password_hash, nickname, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Handle,
		user.PasswordHash,
		user.Nickname,
		string(user.Role),
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrHandleExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.UpdatedAt = user.CreatedAt
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByHandle retrieves a user by their login handle.
func (r *Repository) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE handle = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by handle: %w", err)
	}

	return user, nil
}

// ListUsers returns all users with their entitlements, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, handle`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	byID := make(map[string]*model.User)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
		byID[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	if len(users) == 0 {
		return users, nil
	}

	entRows, err := r.pool.Query(ctx, `
		SELECT user_id, book_slug, acquired_at
		FROM entitlements
		ORDER BY acquired_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer entRows.Close()

	for entRows.Next() {
		var e model.Entitlement
		if err := entRows.Scan(&e.UserID, &e.BookSlug, &e.AcquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan entitlement: %w", err)
		}
		if u, ok := byID[e.UserID]; ok {
			u.Entitlements = append(u.Entitlements, e)
		}
	}
	if err := entRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entitlements: %w", err)
	}

	return users, nil
}

// SetUserRole changes a user's role.
func (r *Repository) SetUserRole(ctx context.Context, id string, role model.Role) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePasswordHash replaces a user's stored hash, used to upgrade legacy hashes on login.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpsertImportedUser inserts a user carried over from the legacy store, or
// refreshes its profile when the handle already exists. The stored ID is returned.
func (r *Repository) UpsertImportedUser(ctx context.Context, user *model.User) (string, error) {
	query := `
		INSERT INTO users (id, handle, password_hash, nickname, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (handle) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    nickname = EXCLUDED.nickname,
		    role = EXCLUDED.role,
		    updated_at = NOW()
		RETURNING id
	`

	var id string
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Handle,
		user.PasswordHash,
		user.Nickname,
		string(user.Role),
		user.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert user %q: %w", user.Handle, err)
	}
	return id, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var role string
	err := row.Scan(
		&user.ID,
		&user.Handle,
		&user.PasswordHash,
		&user.Nickname,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return &user, nil
}
