// Package models holds the account domain types shared across layers
package models

import "time"

// Role is a closed set of account roles. Authorization is set membership, not hierarchy.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Account represents a row in the users table
type Account struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Role         Role       `db:"role"`
	IsActive     bool       `db:"is_active"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

// NamespaceName returns the name of the namespace provisioned for the account
func NamespaceName(username string) string {
	return "user-" + username
}
