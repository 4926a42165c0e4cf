package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
)

// EventFilter narrows event listings.
type EventFilter struct {
	OrganizerID string
}

// EventRepository exposes persistence operations for events and their dependent records.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (models.Event, error)
	List(ctx context.Context, filter EventFilter) ([]models.Event, error)
	Delete(ctx context.Context, id string) error
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

type eventRepository struct {
	db *gorm.DB
}

// Create stores the event together with its empty leaderboard.
func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		return tx.Create(&models.Leaderboard{EventID: event.ID}).Error
	})
}

func (r *eventRepository) Update(ctx context.Context, event *models.Event) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", event.ID).
		Select("name", "description", "start_time", "end_time", "updated_at").
		Updates(event)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return models.Event{}, err
	}
	return event, nil
}

func (r *eventRepository) List(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})
	if filter.OrganizerID != "" {
		query = query.Where("organizer_id = ?", filter.OrganizerID)
	}

	var events []models.Event
	if err := query.Order("start_time DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Delete removes the event and everything that references it in a single transaction.
func (r *eventRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dependents := []interface{}{
			&models.Question{},
			&models.Submission{},
			&models.ScoreAward{},
			&models.Leaderboard{},
		}
		for _, model := range dependents {
			if err := tx.Where("event_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}

		result := tx.Where("id = ?", id).Delete(&models.Event{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
