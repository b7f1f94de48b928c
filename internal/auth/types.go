package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser may read timetables and edit their events.
	RoleUser Role = "user"

	// RoleAdmin may additionally create, rename and delete stored
	// timetables and reload the configuration file.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
