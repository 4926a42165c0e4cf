package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/observability"
)

var (
	// ErrLeaderboardNotFound indicates the event has no leaderboard row to update.
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	// ErrLeaderboardConflict indicates concurrent writers kept winning until attempts ran out.
	ErrLeaderboardConflict = errors.New("leaderboard update conflict")

	errVersionConflict = errors.New("leaderboard version changed")
)

const defaultAwardAttempts = 5

// SubmissionAward credits an accepted submission on its event leaderboard.
type SubmissionAward struct {
	SubmissionID string
	EventID      string
	QuestionID   string
	UserID       string
	DisplayName  string
	Points       int
	// FirstAcceptanceOnly skips the credit when the user already earned points for the question.
	FirstAcceptanceOnly bool
}

// AwardOutcome reports what AwardSubmission did.
type AwardOutcome struct {
	Points      int
	AlreadyDone bool
	Leaderboard models.Leaderboard
}

// Credited reports whether the leaderboard changed.
func (o AwardOutcome) Credited() bool {
	return o.Points > 0 && !o.AlreadyDone
}

// LeaderboardRepository performs atomic read-modify-write updates on event leaderboards.
type LeaderboardRepository interface {
	GetByEventID(ctx context.Context, eventID string) (models.Leaderboard, error)
	AwardPoints(ctx context.Context, eventID, userID, displayName string, amount int) (models.Leaderboard, error)
	AwardSubmission(ctx context.Context, award SubmissionAward) (AwardOutcome, error)
}

type leaderboardRepository struct {
	db          *gorm.DB
	maxAttempts int
}

// NewLeaderboardRepository constructs the repository. maxAttempts bounds optimistic retries.
func NewLeaderboardRepository(db *gorm.DB, maxAttempts int) LeaderboardRepository {
	if maxAttempts <= 0 {
		maxAttempts = defaultAwardAttempts
	}
	return &leaderboardRepository{db: db, maxAttempts: maxAttempts}
}

func (r *leaderboardRepository) GetByEventID(ctx context.Context, eventID string) (models.Leaderboard, error) {
	var board models.Leaderboard
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Leaderboard{}, ErrLeaderboardNotFound
		}
		return models.Leaderboard{}, err
	}
	return board, nil
}

// AwardPoints adds amount to the user's score. Calls are additive, never deduplicated.
func (r *leaderboardRepository) AwardPoints(ctx context.Context, eventID, userID, displayName string, amount int) (models.Leaderboard, error) {
	return r.mutate(ctx, eventID, func(_ *gorm.DB, board *models.Leaderboard) (bool, error) {
		board.Award(userID, displayName, amount)
		return true, nil
	})
}

// AwardSubmission records the award ledger row and the leaderboard credit in one transaction.
// Re-driving the same submission is a no-op.
func (r *leaderboardRepository) AwardSubmission(ctx context.Context, award SubmissionAward) (AwardOutcome, error) {
	var outcome AwardOutcome

	board, err := r.mutate(ctx, award.EventID, func(tx *gorm.DB, board *models.Leaderboard) (bool, error) {
		outcome = AwardOutcome{}

		var existing int64
		if err := tx.Model(&models.ScoreAward{}).Where("submission_id = ?", award.SubmissionID).Count(&existing).Error; err != nil {
			return false, err
		}
		if existing > 0 {
			outcome.AlreadyDone = true
			return false, nil
		}

		points := award.Points
		if award.FirstAcceptanceOnly {
			var earned int64
			err := tx.Model(&models.ScoreAward{}).
				Where("event_id = ? AND question_id = ? AND user_id = ? AND points > 0", award.EventID, award.QuestionID, award.UserID).
				Count(&earned).Error
			if err != nil {
				return false, err
			}
			if earned > 0 {
				points = 0
			}
		}

		ledger := models.ScoreAward{
			SubmissionID: award.SubmissionID,
			EventID:      award.EventID,
			QuestionID:   award.QuestionID,
			UserID:       award.UserID,
			Points:       points,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return false, err
		}

		outcome.Points = points
		if points == 0 {
			return false, nil
		}

		board.Award(award.UserID, award.DisplayName, points)
		return true, nil
	})
	if err != nil {
		return AwardOutcome{}, err
	}

	outcome.Leaderboard = board
	return outcome, nil
}

// mutate runs apply inside a transaction and writes the board back guarded by its version.
// A lost race restarts the whole transaction, up to maxAttempts times.
func (r *leaderboardRepository) mutate(ctx context.Context, eventID string, apply func(tx *gorm.DB, board *models.Leaderboard) (bool, error)) (models.Leaderboard, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var result models.Leaderboard
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var board models.Leaderboard
			if err := tx.Where("event_id = ?", eventID).First(&board).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrLeaderboardNotFound
				}
				return err
			}

			changed, err := apply(tx, &board)
			if err != nil {
				return err
			}
			if !changed {
				result = board
				return nil
			}

			now := time.Now().UTC()
			update := tx.Model(&models.Leaderboard{}).
				Where("id = ? AND version = ?", board.ID, board.Version).
				Updates(map[string]interface{}{
					"scores":     board.Scores,
					"version":    board.Version + 1,
					"updated_at": now,
				})
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return errVersionConflict
			}

			board.Version++
			board.UpdatedAt = now
			result = board
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return models.Leaderboard{}, err
		}

		observability.LeaderboardConflicts().Inc()
		if ctx.Err() != nil {
			return models.Leaderboard{}, ctx.Err()
		}
	}

	return models.Leaderboard{}, ErrLeaderboardConflict
}
