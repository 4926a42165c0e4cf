package dto

import (
	"time"

	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// StarterCodePayload carries the per-language templates of a question.
type StarterCodePayload struct {
	JavaScript string `json:"javascript"`
	Python     string `json:"python"`
	Cpp        string `json:"cpp"`
}

// QuestionCreateRequest adds a question to an event, typed manually or accepted from the generator.
type QuestionCreateRequest struct {
	Title       string             `json:"title" validate:"required,max=255"`
	Description string             `json:"description" validate:"required"`
	Difficulty  string             `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	StarterCode StarterCodePayload `json:"starter_code"`
}

// QuestionGenerateRequest asks the model to draft a question.
type QuestionGenerateRequest struct {
	Topic      string `json:"topic" validate:"required,max=200"`
	Difficulty string `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
}

// QuestionResponse represents a question to API consumers.
type QuestionResponse struct {
	ID              string             `json:"id"`
	EventID         string             `json:"event_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	DescriptionHTML string             `json:"description_html"`
	Difficulty      string             `json:"difficulty"`
	StarterCode     StarterCodePayload `json:"starter_code"`
	CreatedAt       time.Time          `json:"created_at"`
}

// GeneratedQuestionResponse is a draft returned by the generator; it is not stored until added.
type GeneratedQuestionResponse struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Difficulty  string             `json:"difficulty"`
	StarterCode StarterCodePayload `json:"starter_code"`
}

// NewQuestionResponse builds a response DTO from a model.
func NewQuestionResponse(question models.Question) QuestionResponse {
	starter := question.StarterCode.Data()
	return QuestionResponse{
		ID:              question.ID,
		EventID:         question.EventID,
		Title:           question.Title,
		Description:     question.Description,
		DescriptionHTML: utils.TextToHTML(question.Description),
		Difficulty:      question.Difficulty,
		StarterCode: StarterCodePayload{
			JavaScript: starter.JavaScript,
			Python:     starter.Python,
			Cpp:        starter.Cpp,
		},
		CreatedAt: question.CreatedAt,
	}
}

// NewQuestionResponses maps a slice of questions.
func NewQuestionResponses(questions []models.Question) []QuestionResponse {
	responses := make([]QuestionResponse, 0, len(questions))
	for _, question := range questions {
		responses = append(responses, NewQuestionResponse(question))
	}
	return responses
}
