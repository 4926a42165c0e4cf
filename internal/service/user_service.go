package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/repository"
)

// UserService manages the caller's profile.
type UserService interface {
	Me(ctx context.Context, caller Identity) (dto.UserResponse, error)
	UpdateMe(ctx context.Context, caller Identity, payload dto.ProfileUpdateRequest) (dto.UserResponse, error)
}

type userService struct {
	repo      repository.UserRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewUserService constructs a user service.
func NewUserService(repo repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) UserService {
	return &userService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "user_service").Logger(),
	}
}

func (s *userService) Me(ctx context.Context, caller Identity) (dto.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(user), nil
}

func (s *userService) UpdateMe(ctx context.Context, caller Identity, payload dto.ProfileUpdateRequest) (dto.UserResponse, error) {
	payload.DisplayName = strings.TrimSpace(payload.DisplayName)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Role = strings.ToLower(strings.TrimSpace(payload.Role))
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	role := payload.Role
	if role == "" {
		role = models.RoleParticipant
		if caller.IsOrganizer() {
			role = models.RoleOrganizer
		}
	}

	user := models.User{
		ID:          caller.UserID,
		Email:       payload.Email,
		DisplayName: payload.DisplayName,
		Role:        role,
	}
	if err := s.repo.Upsert(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	stored, err := s.repo.GetByID(ctx, caller.UserID)
	if err != nil {
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(stored), nil
}
