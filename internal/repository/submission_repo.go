package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	EventID    string
	QuestionID string
	UserID     string
	Status     string
	Limit      int
}

// SubmissionRepository defines data operations for submissions. Submissions are append-only.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	SolvedQuestionIDs(ctx context.Context, eventID, userID string) ([]string, error)
	ListUnawarded(ctx context.Context, eventID string, limit int) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.EventID != "" {
		query = query.Where("event_id = ?", filter.EventID)
	}

	if filter.QuestionID != "" {
		query = query.Where("question_id = ?", filter.QuestionID)
	}

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) SolvedQuestionIDs(ctx context.Context, eventID, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Distinct().
		Where("event_id = ? AND user_id = ? AND status = ?", eventID, userID, models.SubmissionStatusAccepted).
		Order("question_id").
		Pluck("question_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// ListUnawarded returns accepted submissions that have no score award yet, oldest first.
func (r *submissionRepository) ListUnawarded(ctx context.Context, eventID string, limit int) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("submissions.*").
		Joins("LEFT JOIN score_awards ON score_awards.submission_id = submissions.id").
		Where("submissions.status = ?", models.SubmissionStatusAccepted).
		Where("score_awards.id IS NULL")

	if eventID != "" {
		query = query.Where("submissions.event_id = ?", eventID)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var submissions []models.Submission
	if err := query.Order("submissions.submitted_at ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}
