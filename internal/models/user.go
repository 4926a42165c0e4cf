package models

import "time"

// User roles.
const (
	RoleOrganizer   = "organizer"
	RoleParticipant = "participant"
)

// User is a participant or organizer profile keyed by the identity provider's subject.
type User struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	Email       string    `gorm:"size:255" json:"email"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	Role        string    `gorm:"size:32;not null" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
