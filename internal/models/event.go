package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a timed coding competition owned by one organizer.
type Event struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	StartTime   time.Time `gorm:"not null" json:"start_time"`
	EndTime     time.Time `gorm:"not null" json:"end_time"`
	OrganizerID string    `gorm:"size:128;not null;index" json:"organizer_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsOpen reports whether submissions are accepted at the given instant.
func (e Event) IsOpen(now time.Time) bool {
	return !now.Before(e.StartTime) && !now.After(e.EndTime)
}

// OwnedBy reports whether the organizer owns the event.
func (e Event) OwnedBy(organizerID string) bool {
	return organizerID != "" && e.OrganizerID == organizerID
}
