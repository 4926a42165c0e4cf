package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
)

func newLeaderboardService(f fixture, cache *redis.Client, feed realtime.Publisher, cfg LeaderboardConfig) LeaderboardService {
	return NewLeaderboardService(f.boards, f.submissions, f.users, cache, feed, cfg, zerolog.Nop())
}

func TestLeaderboardServiceConcurrentAwardsKeepEveryUpdate(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")
	svc := newLeaderboardService(f, nil, nil, LeaderboardConfig{})

	const participants = 20
	var wg sync.WaitGroup
	errs := make(chan error, participants)
	for i := 0; i < participants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AwardPoints(context.Background(), event.ID, fmt.Sprintf("user-%02d", i), fmt.Sprintf("User %d", i), 10)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	board, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Len(t, board.Entries, participants)
	for _, entry := range board.Entries {
		require.Equal(t, 10, entry.Score)
	}
	require.Equal(t, int64(participants), board.Version)
}

func TestLeaderboardServiceAwardPointsIsAdditive(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")
	svc := newLeaderboardService(f, nil, nil, LeaderboardConfig{})

	_, err := svc.AwardPoints(context.Background(), event.ID, "u1", "Alice", 10)
	require.NoError(t, err)
	board, err := svc.AwardPoints(context.Background(), event.ID, "u1", "Alice", 10)
	require.NoError(t, err)

	require.Len(t, board.Entries, 1)
	require.Equal(t, 20, board.Entries[0].Score)

	_, err = svc.AwardPoints(context.Background(), event.ID, "u1", "Alice", 0)
	require.Error(t, err)
}

func TestLeaderboardServiceMissingLeaderboard(t *testing.T) {
	f := newFixture(t)
	svc := newLeaderboardService(f, nil, nil, LeaderboardConfig{})

	_, err := svc.AwardPoints(context.Background(), "ghost", "u1", "Alice", 10)
	require.True(t, errors.Is(err, repository.ErrLeaderboardNotFound))

	_, err = svc.Get(context.Background(), "ghost")
	require.True(t, errors.Is(err, ErrEventNotFound))
}

func TestLeaderboardServiceCachesAndWritesThrough(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	feed := &recordingFeed{}
	svc := newLeaderboardService(f, client, feed, LeaderboardConfig{CacheTTL: time.Minute})

	_, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(LeaderboardCacheKey(event.ID)))

	_, err = svc.AwardPoints(context.Background(), event.ID, "u1", "Alice", 10)
	require.NoError(t, err)
	require.Equal(t, []string{realtime.LeaderboardTopic(event.ID)}, feed.topics())

	var cached dto.LeaderboardResponse
	raw, err := mr.Get(LeaderboardCacheKey(event.ID))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Equal(t, int64(1), cached.Version)

	board, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, 10, board.Entries[0].Score)
}

func TestLeaderboardServiceKeepsNewerCachedSnapshot(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := newLeaderboardService(f, client, nil, LeaderboardConfig{CacheTTL: time.Minute}).(*leaderboardService)
	ctx := context.Background()

	// A reader loads the empty board, then an award lands before the reader caches it.
	stale, err := f.boards.GetByEventID(ctx, event.ID)
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, event.ID, "u1", "Alice", 10)
	require.NoError(t, err)
	svc.storeCache(ctx, dto.NewLeaderboardResponse(stale))

	board, err := svc.Get(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), board.Version)
	require.Len(t, board.Entries, 1)
	require.Equal(t, 10, board.Entries[0].Score)
	require.Greater(t, mr.TTL(LeaderboardCacheKey(event.ID)), time.Duration(0))
}

func TestLeaderboardServiceAwardSubmissionHonoursPolicy(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")
	question := f.seedQuestion(t, event.ID)
	svc := newLeaderboardService(f, nil, nil, LeaderboardConfig{AwardPoints: 10, FirstAcceptanceOnly: true})

	first := acceptedSubmission(t, f, event.ID, question.ID, "u1")
	second := acceptedSubmission(t, f, event.ID, question.ID, "u1")

	outcome, err := svc.AwardSubmission(context.Background(), first, "Alice")
	require.NoError(t, err)
	require.Equal(t, 10, outcome.Points)

	outcome, err = svc.AwardSubmission(context.Background(), second, "Alice")
	require.NoError(t, err)
	require.False(t, outcome.Credited())

	_, err = svc.AwardSubmission(context.Background(), models.Submission{ID: "x", Status: models.SubmissionStatusWrongAnswer}, "Alice")
	require.Error(t, err)
}

func TestLeaderboardServiceReconcileRepairsMissingAwardOnce(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")
	question := f.seedQuestion(t, event.ID)
	require.NoError(t, f.users.Upsert(context.Background(), &models.User{ID: "u1", DisplayName: "Alice", Role: models.RoleParticipant}))

	acceptedSubmission(t, f, event.ID, question.ID, "u1")
	feed := &recordingFeed{}
	svc := newLeaderboardService(f, nil, feed, LeaderboardConfig{AwardPoints: 10, FirstAcceptanceOnly: true})

	summary, err := svc.Reconcile(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, dto.ReconcileResponse{Scanned: 1, Credited: 1}, summary)

	summary, err = svc.Reconcile(context.Background(), "")
	require.NoError(t, err)
	require.Zero(t, summary.Scanned)

	board, err := svc.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", board.Entries[0].DisplayName)
	require.Equal(t, 10, board.Entries[0].Score)
	require.NotNil(t, feed.last(realtime.LeaderboardTopic(event.ID)))
}

func TestLeaderboardServiceStartReconcilesPeriodically(t *testing.T) {
	f := newFixture(t)
	event := f.seedOpenEvent(t, "org-1")
	question := f.seedQuestion(t, event.ID)
	acceptedSubmission(t, f, event.ID, question.ID, "u1")

	svc := newLeaderboardService(f, nil, nil, LeaderboardConfig{ReconcileInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	require.Eventually(t, func() bool {
		board, err := f.boards.GetByEventID(context.Background(), event.ID)
		return err == nil && len(board.Scores) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	require.Len(t, locks.locks, 2)

	unlockA()
	unlockB()
	require.Empty(t, locks.locks)
}

func acceptedSubmission(t *testing.T, f fixture, eventID, questionID, userID string) models.Submission {
	t.Helper()
	submission := models.Submission{
		EventID:     eventID,
		QuestionID:  questionID,
		UserID:      userID,
		Code:        "print(1)",
		Language:    "python",
		Status:      models.SubmissionStatusAccepted,
		Feedback:    "Correct.",
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, f.submissions.Create(context.Background(), &submission))
	return submission
}
