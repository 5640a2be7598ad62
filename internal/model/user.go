// Package model defines domain entities for the application.
package model

import (
	"time"
)

// Role is the authorization role stored on a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a storefront account.
type User struct {
	ID           string        `json:"id"`
	Handle       string        `json:"userId"`
	PasswordHash string        `json:"-"` // Never serialize
	Nickname     string        `json:"nickname"`
	Role         Role          `json:"role"`
	Entitlements []Entitlement `json:"purchasedBooks,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile returns the projection of the user that is safe to hand to clients.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:       u.ID,
		Handle:   u.Handle,
		Nickname: u.Nickname,
		Role:     u.Role,
	}
}

// UserProfile is the sanitized identity returned on login.
type UserProfile struct {
	ID       string `json:"id"`
	Handle   string `json:"userId"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}
