package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/observability"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
)

const defaultReconcileBatch = 200

// LeaderboardService owns every write to event leaderboards.
type LeaderboardService interface {
	Get(ctx context.Context, eventID string) (dto.LeaderboardResponse, error)
	AwardPoints(ctx context.Context, eventID, userID, displayName string, amount int) (dto.LeaderboardResponse, error)
	AwardSubmission(ctx context.Context, submission models.Submission, displayName string) (repository.AwardOutcome, error)
	Reconcile(ctx context.Context, eventID string) (dto.ReconcileResponse, error)
	Start(ctx context.Context)
}

// LeaderboardConfig tunes scoring and caching.
type LeaderboardConfig struct {
	AwardPoints         int
	FirstAcceptanceOnly bool
	CacheTTL            time.Duration
	ReconcileInterval   time.Duration
	ReconcileBatch      int
}

type leaderboardService struct {
	boards      repository.LeaderboardRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	cache       *redis.Client
	feed        realtime.Publisher
	config      LeaderboardConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	locks       *keyedMutex
}

// NewLeaderboardService constructs the leaderboard service. cache and feed may be nil.
func NewLeaderboardService(boards repository.LeaderboardRepository, submissions repository.SubmissionRepository, users repository.UserRepository, cache *redis.Client, feed realtime.Publisher, cfg LeaderboardConfig, logger zerolog.Logger) LeaderboardService {
	if cfg.AwardPoints <= 0 {
		cfg.AwardPoints = 10
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = defaultReconcileBatch
	}

	return &leaderboardService{
		boards:      boards,
		submissions: submissions,
		users:       users,
		cache:       cache,
		feed:        feed,
		config:      cfg,
		logger:      logger.With().Str("component", "leaderboard_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/codearena-api/internal/service/leaderboard"),
		locks:       newKeyedMutex(),
	}
}

// LeaderboardCacheKey is the Redis key holding the rendered leaderboard of an event.
func LeaderboardCacheKey(eventID string) string {
	return fmt.Sprintf("leaderboard:event:%s", eventID)
}

func (s *leaderboardService) Get(ctx context.Context, eventID string) (dto.LeaderboardResponse, error) {
	cacheKey := LeaderboardCacheKey(eventID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.LeaderboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("event_id", eventID).Msg("leaderboard cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
		}
	}

	board, err := s.boards.GetByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrLeaderboardNotFound) {
			return dto.LeaderboardResponse{}, ErrEventNotFound
		}
		return dto.LeaderboardResponse{}, err
	}

	response := dto.NewLeaderboardResponse(board)
	s.storeCache(ctx, response)

	return response, nil
}

// AwardPoints adds amount to the user's score. Repeated calls add again.
func (s *leaderboardService) AwardPoints(ctx context.Context, eventID, userID, displayName string, amount int) (dto.LeaderboardResponse, error) {
	if amount <= 0 {
		return dto.LeaderboardResponse{}, fmt.Errorf("award amount must be positive, got %d", amount)
	}

	spanCtx, span := s.tracer.Start(ctx, "leaderboard.award_points", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	unlock := s.locks.Lock(eventID)
	board, err := s.boards.AwardPoints(spanCtx, eventID, userID, displayName, amount)
	unlock()
	if err != nil {
		span.RecordError(err)
		return dto.LeaderboardResponse{}, err
	}

	observability.PointsAwarded().Add(float64(amount))
	response := dto.NewLeaderboardResponse(board)
	s.afterChange(spanCtx, response)

	return response, nil
}

// AwardSubmission credits an accepted submission once, honouring the configured award policy.
func (s *leaderboardService) AwardSubmission(ctx context.Context, submission models.Submission, displayName string) (repository.AwardOutcome, error) {
	if !submission.IsAccepted() {
		return repository.AwardOutcome{}, fmt.Errorf("submission %s is not accepted", submission.ID)
	}

	spanCtx, span := s.tracer.Start(ctx, "leaderboard.award_submission", trace.WithAttributes(
		attribute.String("event.id", submission.EventID),
		attribute.String("submission.id", submission.ID),
	))
	defer span.End()

	unlock := s.locks.Lock(submission.EventID)
	outcome, err := s.boards.AwardSubmission(spanCtx, repository.SubmissionAward{
		SubmissionID:        submission.ID,
		EventID:             submission.EventID,
		QuestionID:          submission.QuestionID,
		UserID:              submission.UserID,
		DisplayName:         displayName,
		Points:              s.config.AwardPoints,
		FirstAcceptanceOnly: s.config.FirstAcceptanceOnly,
	})
	unlock()
	if err != nil {
		span.RecordError(err)
		return repository.AwardOutcome{}, err
	}

	if outcome.Credited() {
		observability.PointsAwarded().Add(float64(outcome.Points))
		s.afterChange(spanCtx, dto.NewLeaderboardResponse(outcome.Leaderboard))
	}

	return outcome, nil
}

// Reconcile credits accepted submissions that have no award yet. An empty eventID scans every event.
func (s *leaderboardService) Reconcile(ctx context.Context, eventID string) (dto.ReconcileResponse, error) {
	pending, err := s.submissions.ListUnawarded(ctx, eventID, s.config.ReconcileBatch)
	if err != nil {
		return dto.ReconcileResponse{}, err
	}

	summary := dto.ReconcileResponse{Scanned: len(pending)}
	names := map[string]string{}

	for _, submission := range pending {
		name, ok := names[submission.UserID]
		if !ok {
			name = s.displayName(ctx, submission.UserID)
			names[submission.UserID] = name
		}

		outcome, err := s.AwardSubmission(ctx, submission, name)
		switch {
		case err != nil:
			summary.Failed++
			s.logger.Error().Err(err).Str("submission_id", submission.ID).Msg("reconcile award failed")
		case outcome.Credited():
			summary.Credited++
		default:
			summary.Skipped++
		}
	}

	if summary.Credited > 0 {
		observability.AwardsReconciled().Add(float64(summary.Credited))
	}
	if summary.Scanned > 0 {
		s.logger.Info().
			Str("event_id", eventID).
			Int("scanned", summary.Scanned).
			Int("credited", summary.Credited).
			Int("failed", summary.Failed).
			Msg("leaderboard reconciliation finished")
	}

	return summary, nil
}

// Start runs periodic reconciliation until ctx is cancelled.
func (s *leaderboardService) Start(ctx context.Context) {
	if s.config.ReconcileInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.config.ReconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Reconcile(ctx, ""); err != nil && ctx.Err() == nil {
					s.logger.Error().Err(err).Msg("periodic reconciliation failed")
				}
			}
		}
	}()
}

func (s *leaderboardService) displayName(ctx context.Context, userID string) string {
	if s.users != nil {
		user, err := s.users.GetByID(ctx, userID)
		if err == nil && user.DisplayName != "" {
			return user.DisplayName
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load profile for display name")
		}
	}
	return userID
}

// afterChange writes the new snapshot through to the cache and pushes it to live subscribers.
func (s *leaderboardService) afterChange(ctx context.Context, response dto.LeaderboardResponse) {
	s.storeCache(ctx, response)

	if s.feed != nil {
		if err := s.feed.Publish(ctx, realtime.LeaderboardTopic(response.EventID), response); err != nil {
			s.logger.Warn().Err(err).Str("event_id", response.EventID).Msg("failed to publish leaderboard")
		}
	}
}

// storeIfNewer replaces the cached snapshot only when the incoming version is higher,
// so a reader that loaded the row before an award cannot put the older board back.
var storeIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == 'table' and tonumber(cached['version']) and tonumber(cached['version']) >= tonumber(ARGV[1]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (s *leaderboardService) storeCache(ctx context.Context, response dto.LeaderboardResponse) {
	if s.cache == nil {
		return
	}

	key := LeaderboardCacheKey(response.EventID)
	if s.config.CacheTTL <= 0 {
		if err := s.cache.Del(ctx, key).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
		}
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	ttl := s.config.CacheTTL.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	if err := storeIfNewer.Run(ctx, s.cache, []string{key}, response.Version, string(payload), ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
		if delErr := s.cache.Del(ctx, key).Err(); delErr != nil {
			s.logger.Warn().Err(delErr).Msg("failed to invalidate leaderboard cache")
		}
	}
}

// keyedMutex serialises work per key. Entries are dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &refMutex{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.Lock()

	return func() {
		entry.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
