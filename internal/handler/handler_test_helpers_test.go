package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/codearena-api/internal/config"
	"github.com/noah-isme/codearena-api/internal/handler"
	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/internal/router"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/pkg/ai"
)

const testSecret = "handler-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type stubEvaluator struct {
	mu     sync.Mutex
	result ai.EvaluationResult
	err    error
}

func (s *stubEvaluator) set(result ai.EvaluationResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result, s.err = result, err
}

func (s *stubEvaluator) Evaluate(context.Context, ai.EvaluationInput) (ai.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

type stubGenerator struct {
	question ai.GeneratedQuestion
	err      error
}

func (s *stubGenerator) Generate(context.Context, ai.GenerationInput) (ai.GeneratedQuestion, error) {
	return s.question, s.err
}

type testApp struct {
	app       *fiber.App
	db        *gorm.DB
	feed      *realtime.Feed
	evaluator *stubEvaluator
	generator *stubGenerator
}

type appOptions struct {
	rateLimit int
	probes    map[string]handler.HealthProbe
}

func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	validate := validator.New(validator.WithRequiredStructEnabled())
	log := zerolog.New(io.Discard)
	feed := realtime.NewFeed(realtime.Options{}, log)
	evaluator := &stubEvaluator{result: ai.EvaluationResult{Status: ai.VerdictAccepted, Feedback: "Looks right."}}
	generator := &stubGenerator{}

	eventRepo := repository.NewEventRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	userRepo := repository.NewUserRepository(db)

	boards := service.NewLeaderboardService(repository.NewLeaderboardRepository(db, 5), submissionRepo, userRepo, nil, feed, service.LeaderboardConfig{
		AwardPoints:         10,
		FirstAcceptanceOnly: true,
	}, log)
	events := service.NewEventService(eventRepo, nil, validate, log)
	questions := service.NewQuestionService(eventRepo, questionRepo, generator, feed, validate, log)
	submissions := service.NewSubmissionService(service.SubmissionDependencies{
		Events:      eventRepo,
		Questions:   questionRepo,
		Submissions: submissionRepo,
		Users:       userRepo,
		Leaderboard: boards,
		Evaluator:   evaluator,
		Feed:        feed,
	}, validate, service.SubmissionConfig{EnforceWindow: true}, log)

	var guards []fiber.Handler
	if opts.rateLimit > 0 {
		guards = append(guards, middleware.RateLimit("submit", opts.rateLimit, time.Minute))
	}

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &log})
	router.Register(app, config.Config{AppName: "CodeArena Test", AppEnv: "test", JWTSecret: testSecret}, router.Dependencies{
		EventHandler:       handler.NewEventHandler(events, log),
		QuestionHandler:    handler.NewQuestionHandler(questions, feed, log),
		SubmissionHandler:  handler.NewSubmissionHandler(submissions, feed, log),
		LeaderboardHandler: handler.NewLeaderboardHandler(boards, events, feed, log),
		UserHandler:        handler.NewUserHandler(service.NewUserService(userRepo, validate, log), log),
		JWTMiddleware:      middleware.JWTProtected(testSecret),
		SubmitGuards:       guards,
		HealthProbes:       opts.probes,
	})

	return &testApp{app: app, db: db, feed: feed, evaluator: evaluator, generator: generator}
}

func token(t *testing.T, userID, role, name string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": userID, "role": role, "exp": time.Now().Add(time.Hour).Unix()}
	if name != "" {
		claims["name"] = name
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func organizerToken(t *testing.T, userID string) string {
	return token(t, userID, models.RoleOrganizer, "")
}

func participantToken(t *testing.T, userID, name string) string {
	return token(t, userID, models.RoleParticipant, name)
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

// openEvent creates an event running now and one question in it, returning their ids.
func (a *testApp) openEvent(t *testing.T, organizer string) (string, string) {
	t.Helper()
	now := time.Now().UTC()
	status, env := a.do(t, http.MethodPost, "/api/v1/events", organizer, map[string]interface{}{
		"name":        "Spring Cup",
		"description": "Algorithms sprint",
		"start_time":  now.Add(-time.Hour),
		"end_time":    now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var event struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &event)

	status, env = a.do(t, http.MethodPost, "/api/v1/events/"+event.ID+"/questions", organizer, map[string]interface{}{
		"title":       "Two Sum",
		"description": "Return indices of two numbers adding to target.",
		"difficulty":  "Easy",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var question struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &question)

	return event.ID, question.ID
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
