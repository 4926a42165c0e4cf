package dto

import (
	"time"

	"github.com/noah-isme/codearena-api/internal/models"
)

// ProfileUpdateRequest updates the caller's profile.
type ProfileUpdateRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	Role        string `json:"role" validate:"omitempty,oneof=organizer participant"`
}

// UserResponse represents a profile to API consumers.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUserResponse builds a response DTO from a model.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}
