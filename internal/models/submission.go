package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// SubmissionStatusPending is reserved for submissions awaiting a verdict; the pipeline never stores it.
	SubmissionStatusPending = "Pending"
	// SubmissionStatusAccepted marks a submission the judge considered correct.
	SubmissionStatusAccepted = "Accepted"
	// SubmissionStatusWrongAnswer marks a submission the judge rejected.
	SubmissionStatusWrongAnswer = "Wrong Answer"
)

// Submission is one participant's graded attempt at a question. Rows are append-only.
type Submission struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	EventID     string    `gorm:"size:36;not null;index:idx_submission_lookup,priority:1" json:"event_id"`
	QuestionID  string    `gorm:"size:36;not null;index:idx_submission_lookup,priority:2" json:"question_id"`
	UserID      string    `gorm:"size:128;not null;index:idx_submission_lookup,priority:3" json:"user_id"`
	Code        string    `gorm:"type:text;not null" json:"code"`
	Language    string    `gorm:"size:32;not null" json:"language"`
	Status      string    `gorm:"size:32;not null;index" json:"status"`
	Feedback    string    `gorm:"type:text" json:"feedback"`
	SubmittedAt time.Time `gorm:"not null" json:"submitted_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsAccepted reports whether the submission earned the question.
func (s Submission) IsAccepted() bool {
	return s.Status == SubmissionStatusAccepted
}
