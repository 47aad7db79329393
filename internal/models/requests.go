package models

import "time"

// RegisterRequest is the body of POST /api/register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=80" example:"bob"`
	Email    string `json:"email" validate:"required,max=120" example:"bob@example.com"`
	Password string `json:"password" validate:"required" example:"s3cret"`
	Role     Role   `json:"role,omitempty" validate:"omitempty,oneof=admin user" example:"user"`
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Username string `json:"username" example:"bob"`
	Password string `json:"password" example:"s3cret"`
}

// SetActiveRequest is the body of PATCH /api/users/{username}/status
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// AccountSummary is the part of an account returned on login
type AccountSummary struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	User        AccountSummary `json:"user"`
}

// AccountListItem is the public projection of an account
type AccountListItem struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

// NewAccountListItem projects an account without its password hash
func NewAccountListItem(a *Account) AccountListItem {
	return AccountListItem{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
	}
}
