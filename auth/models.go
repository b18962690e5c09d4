package auth

import (
	"time"

	"tolkflow/user"
)

// Account is the credentialed view of a user row. It mirrors the users table
// and carries no JSON annotations so it can be reused by different
// presentation layers.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Mobile       *string
	Role         user.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Name     string    `json:"name"`
	Role     user.Role `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
