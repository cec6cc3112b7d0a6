// Package identity contains the domain types for authenticated callers.
package identity

import (
	"sort"
	"strings"
	"time"
)

// UserContext is the authenticated identity attached to a single request.
// It is constructed once by the identity service and passed by value through
// the rest of the call; nothing downstream mutates it.
type UserContext struct {
	// Subject is the opaque stable identifier of the caller.
	Subject string `json:"subject"`
	// Username is the display identity (login name).
	Username string `json:"username"`
	// Email is propagated to the backend RLS engine.
	Email string `json:"email,omitempty"`
	// Department is optional; some RLS policies filter on it.
	Department string `json:"department,omitempty"`
	// Roles is the unordered role set of the caller.
	Roles []string `json:"roles"`
}

// HasRole returns true if the context holds the given role.
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the context holds any of the given roles.
func (u UserContext) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// RoleList returns the roles comma-joined in sorted order, the form the RLS
// session binder writes into the backend session.
func (u UserContext) RoleList() string {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	sort.Strings(roles)
	return strings.Join(roles, ",")
}

// Token is a provisioned bearer credential. The raw token is never stored;
// Hash is its Argon2id PHC-format hash.
type Token struct {
	// Hash is the Argon2id hash of the raw bearer token.
	Hash string
	// Subject, Username, Email, Department and Roles become the UserContext
	// of every request authenticated with this token.
	Subject    string
	Username   string
	Email      string
	Department string
	Roles      []string
	// CreatedAt is when the token was provisioned (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the token expires (nil = never expires).
	ExpiresAt *time.Time
	// Revoked indicates the token has been withdrawn.
	Revoked bool
}

// IsExpired returns true if the token has expired.
// A token with nil ExpiresAt never expires.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*t.ExpiresAt)
}

// Context builds the UserContext this token authenticates as.
func (t *Token) Context() UserContext {
	roles := make([]string, len(t.Roles))
	copy(roles, t.Roles)
	return UserContext{
		Subject:    t.Subject,
		Username:   t.Username,
		Email:      t.Email,
		Department: t.Department,
		Roles:      roles,
	}
}
