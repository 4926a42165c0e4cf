package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question difficulty levels.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// StarterCode holds the template shown for each supported language.
type StarterCode struct {
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
	Cpp        string `json:"cpp"`
}

// Question is a single coding challenge belonging to an event.
type Question struct {
	ID          string                          `gorm:"primaryKey;size:36" json:"id"`
	EventID     string                          `gorm:"size:36;not null;index" json:"event_id"`
	Title       string                          `gorm:"size:255;not null" json:"title"`
	Description string                          `gorm:"type:text;not null" json:"description"`
	Difficulty  string                          `gorm:"size:16;not null" json:"difficulty"`
	StarterCode datatypes.JSONType[StarterCode] `json:"starter_code"`
	CreatedAt   time.Time                       `json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
