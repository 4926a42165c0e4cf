package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScoreEntry is one participant's running total on a leaderboard.
type ScoreEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Leaderboard aggregates participant scores for one event. Version guards concurrent writers.
type Leaderboard struct {
	ID        string                          `gorm:"primaryKey;size:36" json:"id"`
	EventID   string                          `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Scores    datatypes.JSONSlice[ScoreEntry] `json:"scores"`
	Version   int64                           `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time                       `json:"created_at"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (l *Leaderboard) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Scores == nil {
		l.Scores = datatypes.JSONSlice[ScoreEntry]{}
	}
	return nil
}

// Award adds amount to the user's entry, appending a new entry on first credit.
func (l *Leaderboard) Award(userID, displayName string, amount int) {
	for i := range l.Scores {
		if l.Scores[i].UserID == userID {
			l.Scores[i].Score += amount
			return
		}
	}
	l.Scores = append(l.Scores, ScoreEntry{UserID: userID, DisplayName: displayName, Score: amount})
}

// SortScores returns a copy of scores ordered by descending score. Ties keep their stored order.
func SortScores(scores []ScoreEntry) []ScoreEntry {
	sorted := make([]ScoreEntry, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}

// ScoreAward records a leaderboard credit for an accepted submission.
type ScoreAward struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	SubmissionID string    `gorm:"size:36;not null;uniqueIndex" json:"submission_id"`
	EventID      string    `gorm:"size:36;not null;index:idx_award_question,priority:1" json:"event_id"`
	QuestionID   string    `gorm:"size:36;not null;index:idx_award_question,priority:2" json:"question_id"`
	UserID       string    `gorm:"size:128;not null;index:idx_award_question,priority:3" json:"user_id"`
	Points       int       `gorm:"not null" json:"points"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate assigns a random identifier when none was provided.
func (a *ScoreAward) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
