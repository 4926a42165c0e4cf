package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
)

// QuestionRepository exposes persistence operations for questions nested under an event.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, eventID, id string) (models.Question, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Question, error)
	Delete(ctx context.Context, eventID, id string) error
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *questionRepository) GetByID(ctx context.Context, eventID, id string) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Where("event_id = ? AND id = ?", eventID, id).First(&question).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at ASC").Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepository) Delete(ctx context.Context, eventID, id string) error {
	result := r.db.WithContext(ctx).Where("event_id = ? AND id = ?", eventID, id).Delete(&models.Question{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
