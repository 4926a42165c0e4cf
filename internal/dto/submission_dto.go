package dto

import (
	"time"

	"github.com/noah-isme/codearena-api/internal/models"
)

// SubmissionCreateRequest represents a participant's code submission.
type SubmissionCreateRequest struct {
	Code     string `json:"code" validate:"required,max=65536"`
	Language string `json:"language" validate:"required,max=32"`
}

// SubmissionResponse represents a judged submission to API consumers.
type SubmissionResponse struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	QuestionID  string    `json:"question_id"`
	UserID      string    `json:"user_id"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	Feedback    string    `json:"feedback"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmissionResult is the outcome of the submission pipeline.
type SubmissionResult struct {
	Submission    SubmissionResponse `json:"submission"`
	PointsAwarded int                `json:"points_awarded"`
	// ScorePending is set when the submission was accepted but the leaderboard credit is still outstanding.
	ScorePending bool `json:"score_pending"`
}

// NewSubmissionResponse builds a response DTO from a model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          submission.ID,
		EventID:     submission.EventID,
		QuestionID:  submission.QuestionID,
		UserID:      submission.UserID,
		Code:        submission.Code,
		Language:    submission.Language,
		Status:      submission.Status,
		Feedback:    submission.Feedback,
		SubmittedAt: submission.SubmittedAt,
	}
}

// NewSubmissionResponses maps a slice of submissions.
func NewSubmissionResponses(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}
