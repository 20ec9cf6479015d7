package models

import (
	"strings"
	"time"
)

// Roles understood by the login guard. Only RoleAdmin is subject to the MFA gate.
const (
	RoleAdmin = "admin"
	RoleVoter = "voter"
)

// User is a record in the external identity store.
type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2id PHC string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPrivileged reports whether the user must pass the MFA gate.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin
}

// NormalizeIdentity canonicalizes a login handle for use as a key.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
