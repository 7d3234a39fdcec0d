package models

import "time"

// Operator is a person allowed into the admin.
type Operator struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type OperatorRole string

const (
	RoleAdmin  OperatorRole = "admin"
	RoleViewer OperatorRole = "viewer"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Operator *Operator `json:"operator"`
	Token    string    `json:"token,omitempty"`
}
