package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/pkg/ai"
)

// QuestionService manages the questions of an event.
type QuestionService interface {
	List(ctx context.Context, eventID string) ([]dto.QuestionResponse, error)
	Get(ctx context.Context, eventID, questionID string) (dto.QuestionResponse, error)
	Add(ctx context.Context, caller Identity, eventID string, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error)
	Delete(ctx context.Context, caller Identity, eventID, questionID string) error
	Generate(ctx context.Context, caller Identity, eventID string, payload dto.QuestionGenerateRequest) (dto.GeneratedQuestionResponse, error)
}

type questionService struct {
	events    repository.EventRepository
	questions repository.QuestionRepository
	generator ai.Generator
	feed      realtime.Publisher
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewQuestionService constructs a question service. generator and feed may be nil.
func NewQuestionService(events repository.EventRepository, questions repository.QuestionRepository, generator ai.Generator, feed realtime.Publisher, validate *validator.Validate, logger zerolog.Logger) QuestionService {
	return &questionService{
		events:    events,
		questions: questions,
		generator: generator,
		feed:      feed,
		validator: validate,
		logger:    logger.With().Str("component", "question_service").Logger(),
	}
}

func (s *questionService) List(ctx context.Context, eventID string) ([]dto.QuestionResponse, error) {
	if _, err := s.event(ctx, eventID); err != nil {
		return nil, err
	}

	questions, err := s.questions.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return dto.NewQuestionResponses(questions), nil
}

func (s *questionService) Get(ctx context.Context, eventID, questionID string) (dto.QuestionResponse, error) {
	question, err := s.questions.GetByID(ctx, eventID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionResponse{}, ErrQuestionNotFound
		}
		return dto.QuestionResponse{}, err
	}

	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Add(ctx context.Context, caller Identity, eventID string, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error) {
	payload.Title = strings.TrimSpace(payload.Title)
	payload.Description = strings.TrimSpace(payload.Description)
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	if err := s.authorize(ctx, caller, eventID); err != nil {
		return dto.QuestionResponse{}, err
	}

	question := models.Question{
		EventID:     eventID,
		Title:       payload.Title,
		Description: payload.Description,
		Difficulty:  payload.Difficulty,
		StarterCode: datatypes.NewJSONType(models.StarterCode{
			JavaScript: payload.StarterCode.JavaScript,
			Python:     payload.StarterCode.Python,
			Cpp:        payload.StarterCode.Cpp,
		}),
	}

	if err := s.questions.Create(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}

	s.logger.Info().Str("event_id", eventID).Str("question_id", question.ID).Msg("question added")
	s.publishList(ctx, eventID)

	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Delete(ctx context.Context, caller Identity, eventID, questionID string) error {
	if err := s.authorize(ctx, caller, eventID); err != nil {
		return err
	}

	if err := s.questions.Delete(ctx, eventID, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	s.publishList(ctx, eventID)
	return nil
}

// Generate drafts a question with the model. The draft is returned for review, not stored.
func (s *questionService) Generate(ctx context.Context, caller Identity, eventID string, payload dto.QuestionGenerateRequest) (dto.GeneratedQuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GeneratedQuestionResponse{}, err
	}
	if err := s.authorize(ctx, caller, eventID); err != nil {
		return dto.GeneratedQuestionResponse{}, err
	}
	if s.generator == nil {
		return dto.GeneratedQuestionResponse{}, ErrGeneratorUnavailable
	}

	draft, err := s.generator.Generate(ctx, ai.GenerationInput{Topic: strings.TrimSpace(payload.Topic), Difficulty: payload.Difficulty})
	if err != nil {
		return dto.GeneratedQuestionResponse{}, fmt.Errorf("generate question: %w", err)
	}

	return dto.GeneratedQuestionResponse{
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		Difficulty:  payload.Difficulty,
		StarterCode: dto.StarterCodePayload{
			JavaScript: draft.StarterCode.JavaScript,
			Python:     draft.StarterCode.Python,
			Cpp:        draft.StarterCode.Cpp,
		},
	}, nil
}

func (s *questionService) event(ctx context.Context, eventID string) (models.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, err
	}
	return event, nil
}

func (s *questionService) authorize(ctx context.Context, caller Identity, eventID string) error {
	event, err := s.event(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.OwnedBy(caller.UserID) {
		return ErrForbidden
	}
	return nil
}

func (s *questionService) publishList(ctx context.Context, eventID string) {
	if s.feed == nil {
		return
	}

	questions, err := s.questions.ListByEvent(ctx, eventID)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", eventID).Msg("failed to load questions for live feed")
		return
	}
	if err := s.feed.Publish(ctx, realtime.QuestionsTopic(eventID), dto.NewQuestionResponses(questions)); err != nil {
		s.logger.Warn().Err(err).Str("event_id", eventID).Msg("failed to publish question list")
	}
}
