package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/pkg/ai"
	"github.com/noah-isme/codearena-api/pkg/events"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type fixture struct {
	db          *gorm.DB
	events      repository.EventRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	boards      repository.LeaderboardRepository
}

func newFixture(t *testing.T) fixture {
	db := setupServiceDB(t)
	return fixture{
		db:          db,
		events:      repository.NewEventRepository(db),
		questions:   repository.NewQuestionRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		users:       repository.NewUserRepository(db),
		boards:      repository.NewLeaderboardRepository(db, 5),
	}
}

func (f fixture) seedEvent(t *testing.T, organizerID string, start, end time.Time) models.Event {
	t.Helper()
	event := models.Event{Name: "Spring Cup", Description: "Algorithms sprint", StartTime: start, EndTime: end, OrganizerID: organizerID}
	require.NoError(t, f.events.Create(context.Background(), &event))
	return event
}

func (f fixture) seedOpenEvent(t *testing.T, organizerID string) models.Event {
	now := time.Now().UTC()
	return f.seedEvent(t, organizerID, now.Add(-time.Hour), now.Add(time.Hour))
}

func (f fixture) seedQuestion(t *testing.T, eventID string) models.Question {
	t.Helper()
	question := models.Question{EventID: eventID, Title: "Two Sum", Description: "Return indices of two numbers adding to target.", Difficulty: models.DifficultyEasy}
	require.NoError(t, f.questions.Create(context.Background(), &question))
	return question
}

type stubEvaluator struct {
	result ai.EvaluationResult
	err    error
	calls  atomic.Int32
	last   ai.EvaluationInput
}

func (s *stubEvaluator) Evaluate(_ context.Context, input ai.EvaluationInput) (ai.EvaluationResult, error) {
	s.calls.Add(1)
	s.last = input
	if s.err != nil {
		return ai.EvaluationResult{}, s.err
	}
	return s.result, nil
}

type stubGenerator struct {
	question ai.GeneratedQuestion
	err      error
}

func (s *stubGenerator) Generate(context.Context, ai.GenerationInput) (ai.GeneratedQuestion, error) {
	return s.question, s.err
}

type published struct {
	topic   string
	payload []byte
}

type recordingFeed struct {
	mu       sync.Mutex
	messages []published
}

func (r *recordingFeed) Publish(_ context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, published{topic: topic, payload: data})
	return nil
}

func (r *recordingFeed) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, msg := range r.messages {
		out = append(out, msg.topic)
	}
	return out
}

func (r *recordingFeed) last(topic string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].topic == topic {
			return r.messages[i].payload
		}
	}
	return nil
}

type recordingVerdicts struct {
	mu      sync.Mutex
	records []events.SubmissionJudged
}

func (r *recordingVerdicts) PublishJudged(_ context.Context, event events.SubmissionJudged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, event)
	return nil
}

func (r *recordingVerdicts) Close() error { return nil }

// stalledWriter holds every write until released, like a broker that stopped answering.
type stalledWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (w *stalledWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written += len(msgs)
	return nil
}

func (w *stalledWriter) Close() error { return nil }

func (w *stalledWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
