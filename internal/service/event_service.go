package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/repository"
)

// EventService manages events and their lifecycle.
type EventService interface {
	Create(ctx context.Context, caller Identity, payload dto.EventRequest) (dto.EventResponse, error)
	Update(ctx context.Context, caller Identity, id string, payload dto.EventRequest) (dto.EventResponse, error)
	Delete(ctx context.Context, caller Identity, id string) error
	Get(ctx context.Context, id string) (dto.EventResponse, error)
	List(ctx context.Context, organizerID string) ([]dto.EventResponse, error)
}

type eventService struct {
	repo      repository.EventRepository
	cache     *redis.Client
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEventService constructs an event service. cache may be nil.
func NewEventService(repo repository.EventRepository, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger) EventService {
	return &eventService{
		repo:      repo,
		cache:     cache,
		validator: validate,
		logger:    logger.With().Str("component", "event_service").Logger(),
		now:       time.Now,
	}
}

func (s *eventService) Create(ctx context.Context, caller Identity, payload dto.EventRequest) (dto.EventResponse, error) {
	payload = s.clean(payload)
	if err := s.validator.Struct(payload); err != nil {
		return dto.EventResponse{}, err
	}

	event := models.Event{
		Name:        payload.Name,
		Description: payload.Description,
		StartTime:   payload.StartTime.UTC(),
		EndTime:     payload.EndTime.UTC(),
		OrganizerID: caller.UserID,
	}

	if err := s.repo.Create(ctx, &event); err != nil {
		return dto.EventResponse{}, err
	}

	s.logger.Info().Str("event_id", event.ID).Str("organizer_id", caller.UserID).Msg("event created")
	return dto.NewEventResponse(event, s.now()), nil
}

func (s *eventService) Update(ctx context.Context, caller Identity, id string, payload dto.EventRequest) (dto.EventResponse, error) {
	payload = s.clean(payload)
	if err := s.validator.Struct(payload); err != nil {
		return dto.EventResponse{}, err
	}

	event, err := s.owned(ctx, caller, id)
	if err != nil {
		return dto.EventResponse{}, err
	}

	event.Name = payload.Name
	event.Description = payload.Description
	event.StartTime = payload.StartTime.UTC()
	event.EndTime = payload.EndTime.UTC()
	event.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, &event); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EventResponse{}, ErrEventNotFound
		}
		return dto.EventResponse{}, err
	}

	return dto.NewEventResponse(event, s.now()), nil
}

// Delete removes the event with its questions, submissions, awards and leaderboard in one transaction.
func (s *eventService) Delete(ctx context.Context, caller Identity, id string) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, LeaderboardCacheKey(id)).Err(); err != nil {
			s.logger.Warn().Err(err).Str("event_id", id).Msg("failed to drop leaderboard cache")
		}
	}

	s.logger.Info().Str("event_id", id).Msg("event deleted")
	return nil
}

func (s *eventService) Get(ctx context.Context, id string) (dto.EventResponse, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EventResponse{}, ErrEventNotFound
		}
		return dto.EventResponse{}, err
	}

	return dto.NewEventResponse(event, s.now()), nil
}

func (s *eventService) List(ctx context.Context, organizerID string) ([]dto.EventResponse, error) {
	events, err := s.repo.List(ctx, repository.EventFilter{OrganizerID: organizerID})
	if err != nil {
		return nil, err
	}

	return dto.NewEventResponses(events, s.now()), nil
}

func (s *eventService) owned(ctx context.Context, caller Identity, id string) (models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, err
	}
	if !event.OwnedBy(caller.UserID) {
		return models.Event{}, ErrForbidden
	}
	return event, nil
}

func (s *eventService) clean(payload dto.EventRequest) dto.EventRequest {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Description = strings.TrimSpace(payload.Description)
	return payload
}
