package model

import "time"

// Role is the role a caller logged in with.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Session is the caller identity threaded through every workflow call.
type Session struct {
	Role       Role      `json:"role"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsOwner reports whether the session was opened as Owner.
func (s *Session) IsOwner() bool {
	return s != nil && s.Role == RoleOwner
}
