package dto

import (
	"time"

	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// EventRequest is the payload for creating or updating an event.
type EventRequest struct {
	Name        string    `json:"name" validate:"required,max=255"`
	Description string    `json:"description" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// EventResponse represents an event to API consumers.
type EventResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	DescriptionHTML string    `json:"description_html"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	OrganizerID     string    `json:"organizer_id"`
	IsOpen          bool      `json:"is_open"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewEventResponse builds a response DTO from a model.
func NewEventResponse(event models.Event, now time.Time) EventResponse {
	return EventResponse{
		ID:              event.ID,
		Name:            event.Name,
		Description:     event.Description,
		DescriptionHTML: utils.TextToHTML(event.Description),
		StartTime:       event.StartTime,
		EndTime:         event.EndTime,
		OrganizerID:     event.OrganizerID,
		IsOpen:          event.IsOpen(now),
		CreatedAt:       event.CreatedAt,
		UpdatedAt:       event.UpdatedAt,
	}
}

// NewEventResponses maps a slice of events.
func NewEventResponses(events []models.Event, now time.Time) []EventResponse {
	responses := make([]EventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, NewEventResponse(event, now))
	}
	return responses
}
