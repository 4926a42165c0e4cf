package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/models"
)

func TestLeaderboardRepositoryAwardPointsIsAdditive(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	repo := NewLeaderboardRepository(db, 0)
	ctx := context.Background()

	_, err := repo.AwardPoints(ctx, event.ID, "u1", "Alice", 10)
	require.NoError(t, err)
	board, err := repo.AwardPoints(ctx, event.ID, "u1", "Alice", 10)
	require.NoError(t, err)

	require.Len(t, board.Scores, 1)
	require.Equal(t, 20, board.Scores[0].Score)
	require.Equal(t, int64(2), board.Version)

	stored, err := repo.GetByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 20, stored.Scores[0].Score)
	require.Equal(t, int64(2), stored.Version)
}

func TestLeaderboardRepositoryAwardPointsWithoutLeaderboardWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLeaderboardRepository(db, 0)

	_, err := repo.AwardPoints(context.Background(), "missing-event", "u1", "Alice", 10)
	require.True(t, errors.Is(err, ErrLeaderboardNotFound))

	var count int64
	require.NoError(t, db.Model(&models.Leaderboard{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestLeaderboardRepositoryAwardSubmissionIsIdempotentPerSubmission(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	repo := NewLeaderboardRepository(db, 0)
	ctx := context.Background()

	award := SubmissionAward{SubmissionID: "s1", EventID: event.ID, QuestionID: "q1", UserID: "u1", DisplayName: "Alice", Points: 10}

	first, err := repo.AwardSubmission(ctx, award)
	require.NoError(t, err)
	require.True(t, first.Credited())

	second, err := repo.AwardSubmission(ctx, award)
	require.NoError(t, err)
	require.True(t, second.AlreadyDone)
	require.False(t, second.Credited())
	require.Equal(t, 10, second.Leaderboard.Scores[0].Score)

	var awards int64
	require.NoError(t, db.Model(&models.ScoreAward{}).Count(&awards).Error)
	require.Equal(t, int64(1), awards)
}

func TestLeaderboardRepositoryFirstAcceptanceGuard(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	repo := NewLeaderboardRepository(db, 0)
	ctx := context.Background()

	base := SubmissionAward{EventID: event.ID, QuestionID: "q1", UserID: "u1", DisplayName: "Alice", Points: 10, FirstAcceptanceOnly: true}

	first := base
	first.SubmissionID = "s1"
	outcome, err := repo.AwardSubmission(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 10, outcome.Points)

	repeat := base
	repeat.SubmissionID = "s2"
	outcome, err = repo.AwardSubmission(ctx, repeat)
	require.NoError(t, err)
	require.Zero(t, outcome.Points)
	require.False(t, outcome.Credited())

	other := base
	other.SubmissionID = "s3"
	other.QuestionID = "q2"
	outcome, err = repo.AwardSubmission(ctx, other)
	require.NoError(t, err)
	require.Equal(t, 20, outcome.Leaderboard.Scores[0].Score)

	var ledger []models.ScoreAward
	require.NoError(t, db.Order("submission_id").Find(&ledger).Error)
	require.Len(t, ledger, 3, "skipped awards are still recorded so reconciliation ignores them")
	require.Zero(t, ledger[1].Points)
}

func TestLeaderboardRepositoryEveryAcceptancePolicyCreditsRepeats(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	repo := NewLeaderboardRepository(db, 0)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		_, err := repo.AwardSubmission(ctx, SubmissionAward{SubmissionID: id, EventID: event.ID, QuestionID: "q1", UserID: "u1", DisplayName: "Alice", Points: 10})
		require.NoError(t, err)
	}

	board, err := repo.GetByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 20, board.Scores[0].Score)
}

func TestLeaderboardRepositoryDetectsStaleVersion(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	repo := NewLeaderboardRepository(db, 1).(*leaderboardRepository)
	ctx := context.Background()

	// Bumping the version after the read makes the guarded write miss.
	_, err := repo.mutate(ctx, event.ID, func(tx *gorm.DB, board *models.Leaderboard) (bool, error) {
		require.NoError(t, tx.Exec("UPDATE leaderboards SET version = version + 1 WHERE id = ?", board.ID).Error)
		board.Award("u1", "Alice", 10)
		return true, nil
	})
	require.True(t, errors.Is(err, ErrLeaderboardConflict), "got %v", err)
}

func TestSubmissionRepositoryListUnawardedAndSolved(t *testing.T) {
	db := setupTestDB(t)
	event := seedEvent(t, NewEventRepository(db), "org-1")
	submissions := NewSubmissionRepository(db)
	leaderboards := NewLeaderboardRepository(db, 0)
	ctx := context.Background()

	now := time.Now().UTC()
	rows := []models.Submission{
		{EventID: event.ID, QuestionID: "q1", UserID: "u1", Code: "a", Language: "python", Status: models.SubmissionStatusAccepted, Feedback: "ok", SubmittedAt: now.Add(-3 * time.Minute)},
		{EventID: event.ID, QuestionID: "q2", UserID: "u1", Code: "b", Language: "python", Status: models.SubmissionStatusWrongAnswer, Feedback: "no", SubmittedAt: now.Add(-2 * time.Minute)},
		{EventID: event.ID, QuestionID: "q3", UserID: "u1", Code: "c", Language: "python", Status: models.SubmissionStatusAccepted, Feedback: "ok", SubmittedAt: now.Add(-time.Minute)},
	}
	for i := range rows {
		require.NoError(t, submissions.Create(ctx, &rows[i]))
	}

	_, err := leaderboards.AwardSubmission(ctx, SubmissionAward{SubmissionID: rows[0].ID, EventID: event.ID, QuestionID: "q1", UserID: "u1", DisplayName: "Alice", Points: 10})
	require.NoError(t, err)

	pending, err := submissions.ListUnawarded(ctx, event.ID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, rows[2].ID, pending[0].ID)

	solved, err := submissions.SolvedQuestionIDs(ctx, event.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q3"}, solved)
}
