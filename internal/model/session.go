package model

import "time"

// SessionScope selects the lifetime and privileges of a session token.
type SessionScope string

const (
	ScopeUser  SessionScope = "user"
	ScopeAdmin SessionScope = "admin"
)

// ScopeForRole returns the session scope granted to a role.
func ScopeForRole(role Role) SessionScope {
	if role == RoleAdmin {
		return ScopeAdmin
	}
	return ScopeUser
}

// AuthContext holds the authenticated identity carried by a valid session token.
type AuthContext struct {
	UserID    string
	Handle    string
	Role      Role
	Scope     SessionScope
	ExpiresAt time.Time
}

// IsAdmin returns true when both role and scope are admin.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin && a.Scope == ScopeAdmin
}
