package auth

import (
	"github.com/mateoalvarez/carhive-backend/internal/users"
	"github.com/mateoalvarez/carhive-backend/pkg/types"
)

// RegisterRequest contains the payload required to open a customer account.
type RegisterRequest struct {
	FirstName  string            `json:"first_name" validate:"required"`
	LastName   string            `json:"last_name" validate:"required"`
	Email      string            `json:"email" validate:"required,email"`
	Password   string            `json:"password" validate:"required,min=8"`
	Phone      *string           `json:"phone,omitempty"`
	DriverInfo *types.DriverInfo `json:"driver_info,omitempty"`
}

// LoginRequest carries submitted credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by both register and login.
type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	User        *users.UserDTO `json:"user"`
}
