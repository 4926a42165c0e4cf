package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/observability"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/pkg/ai"
	"github.com/noah-isme/codearena-api/pkg/events"
)

// SubmissionService runs the grade-persist-score pipeline and serves submission history.
type SubmissionService interface {
	Submit(ctx context.Context, caller Identity, eventID, questionID string, payload dto.SubmissionCreateRequest) (dto.SubmissionResult, error)
	History(ctx context.Context, caller Identity, eventID, questionID string) ([]dto.SubmissionResponse, error)
	Solved(ctx context.Context, caller Identity, eventID string) ([]string, error)
}

// SubmissionConfig tunes the pipeline.
type SubmissionConfig struct {
	EnforceWindow bool
}

type submissionService struct {
	events      repository.EventRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	leaderboard LeaderboardService
	evaluator   ai.Evaluator
	verdicts    events.VerdictPublisher
	feed        realtime.Publisher
	validator   *validator.Validate
	config      SubmissionConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// SubmissionDependencies groups the collaborators of the submission pipeline.
type SubmissionDependencies struct {
	Events      repository.EventRepository
	Questions   repository.QuestionRepository
	Submissions repository.SubmissionRepository
	Users       repository.UserRepository
	Leaderboard LeaderboardService
	Evaluator   ai.Evaluator
	Verdicts    events.VerdictPublisher
	Feed        realtime.Publisher
}

// NewSubmissionService constructs the pipeline. Verdicts and Feed may be nil.
func NewSubmissionService(deps SubmissionDependencies, validate *validator.Validate, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	verdicts := deps.Verdicts
	if verdicts == nil {
		verdicts = events.NopPublisher{}
	}

	return &submissionService{
		events:      deps.Events,
		questions:   deps.Questions,
		submissions: deps.Submissions,
		users:       deps.Users,
		leaderboard: deps.Leaderboard,
		evaluator:   deps.Evaluator,
		verdicts:    verdicts,
		feed:        deps.Feed,
		validator:   validate,
		config:      cfg,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/codearena-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, caller Identity, eventID, questionID string, payload dto.SubmissionCreateRequest) (dto.SubmissionResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResult{}, err
	}
	if strings.TrimSpace(payload.Code) == "" {
		return dto.SubmissionResult{}, fmt.Errorf("%w: code is blank", ErrInvalidSource)
	}
	if !isPlainText(payload.Code) {
		return dto.SubmissionResult{}, ErrInvalidSource
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	logger := middleware.LoggerWithCorrelation(ctx, s.logger).With().
		Str("event_id", eventID).
		Str("question_id", questionID).
		Str("user_id", caller.UserID).
		Logger()

	spanCtx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("question.id", questionID),
		attribute.String("submission.language", language),
	))
	defer span.End()

	event, err := s.events.GetByID(spanCtx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResult{}, ErrEventNotFound
		}
		return dto.SubmissionResult{}, err
	}

	question, err := s.questions.GetByID(spanCtx, eventID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResult{}, ErrQuestionNotFound
		}
		return dto.SubmissionResult{}, err
	}

	if s.config.EnforceWindow && !event.IsOpen(s.now()) {
		return dto.SubmissionResult{}, ErrEventNotActive
	}

	if s.evaluator == nil {
		return dto.SubmissionResult{}, ErrEvaluatorUnavailable
	}

	verdict, err := s.evaluator.Evaluate(spanCtx, ai.EvaluationInput{
		Code:                payload.Code,
		Language:            language,
		QuestionDescription: question.Description,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		logger.Warn().Err(err).Msg("evaluation failed, nothing stored")
		return dto.SubmissionResult{}, err
	}

	status := models.SubmissionStatusWrongAnswer
	if verdict.Accepted() {
		status = models.SubmissionStatusAccepted
	}

	submission := models.Submission{
		EventID:     eventID,
		QuestionID:  questionID,
		UserID:      caller.UserID,
		Code:        payload.Code,
		Language:    language,
		Status:      status,
		Feedback:    strings.TrimSpace(verdict.Feedback),
		SubmittedAt: s.now().UTC(),
	}
	if err := s.submissions.Create(spanCtx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResult{}, fmt.Errorf("store submission: %w", err)
	}

	observability.SubmissionsJudged().WithLabelValues(status).Inc()
	logger.Info().Str("submission_id", submission.ID).Str("status", status).Msg("submission judged")

	result := dto.SubmissionResult{Submission: dto.NewSubmissionResponse(submission)}

	var awardErr error
	if submission.IsAccepted() {
		outcome, err := s.leaderboard.AwardSubmission(spanCtx, submission, s.resolveDisplayName(spanCtx, caller))
		if err != nil {
			awardErr = err
			result.ScorePending = true
			span.RecordError(err)
			logger.Error().Err(err).Str("submission_id", submission.ID).Msg("accepted submission stored but leaderboard update failed")
		} else {
			result.PointsAwarded = outcome.Points
		}
	}

	s.publishHistory(spanCtx, logger, caller, eventID, questionID)
	s.publishVerdict(spanCtx, logger, submission, result.PointsAwarded)

	if awardErr != nil {
		return result, fmt.Errorf("%w: %v", ErrLeaderboardUpdateFailed, awardErr)
	}

	return result, nil
}

func (s *submissionService) History(ctx context.Context, caller Identity, eventID, questionID string) ([]dto.SubmissionResponse, error) {
	if _, err := s.questions.GetByID(ctx, eventID, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		EventID:    eventID,
		QuestionID: questionID,
		UserID:     caller.UserID,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponses(submissions), nil
}

func (s *submissionService) Solved(ctx context.Context, caller Identity, eventID string) ([]string, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	ids, err := s.submissions.SolvedQuestionIDs(ctx, eventID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// resolveDisplayName prefers the stored profile, then the token name, then the raw user id.
func (s *submissionService) resolveDisplayName(ctx context.Context, caller Identity) string {
	if s.users != nil {
		if user, err := s.users.GetByID(ctx, caller.UserID); err == nil && strings.TrimSpace(user.DisplayName) != "" {
			return user.DisplayName
		}
	}
	if name := strings.TrimSpace(caller.Name); name != "" {
		return name
	}
	return caller.UserID
}

func (s *submissionService) publishHistory(ctx context.Context, logger zerolog.Logger, caller Identity, eventID, questionID string) {
	if s.feed == nil {
		return
	}

	history, err := s.History(ctx, caller, eventID, questionID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load submission history for live feed")
		return
	}
	if err := s.feed.Publish(ctx, realtime.SubmissionsTopic(eventID, questionID, caller.UserID), history); err != nil {
		logger.Warn().Err(err).Msg("failed to publish submission history")
	}
}

func (s *submissionService) publishVerdict(ctx context.Context, logger zerolog.Logger, submission models.Submission, points int) {
	err := s.verdicts.PublishJudged(ctx, events.SubmissionJudged{
		SubmissionID:  submission.ID,
		EventID:       submission.EventID,
		QuestionID:    submission.QuestionID,
		UserID:        submission.UserID,
		Language:      submission.Language,
		Verdict:       submission.Status,
		Points:        points,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		Timestamp:     submission.SubmittedAt.Format(time.RFC3339),
	})
	if err != nil {
		logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to publish verdict")
	}
}

// isPlainText rejects binary payloads such as archives or executables pasted into the editor.
func isPlainText(code string) bool {
	if !utf8.ValidString(code) || strings.ContainsRune(code, 0) {
		return false
	}
	for mime := mimetype.Detect([]byte(code)); mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}
