package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/config"
	"github.com/noah-isme/codearena-api/internal/database"
	"github.com/noah-isme/codearena-api/internal/handler"
	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/internal/router"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/pkg/ai"
	"github.com/noah-isme/codearena-api/pkg/events"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	var verdicts events.VerdictPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaVerdictTopic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create verdict publisher")
		}
		verdicts = publisher
	}
	defer func() {
		if err := verdicts.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close verdict publisher")
		}
	}()

	var (
		evaluator ai.Evaluator
		generator ai.Generator
	)
	if cfg.OpenAI.APIKey != "" {
		modelCfg := ai.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
			MaxAttempts: cfg.OpenAI.MaxAttempts,
			Logger:      logger,
		}
		openAIEvaluator, err := ai.NewOpenAIEvaluator(modelCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create evaluator")
		}
		openAIGenerator, err := ai.NewOpenAIGenerator(modelCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create question generator")
		}
		evaluator, generator = openAIEvaluator, openAIGenerator
	} else {
		logger.Warn().Msg("openai api key not set, evaluation and question generation are disabled")
	}

	feed := realtime.NewFeed(realtime.Options{Redis: redisClient, NATS: natsConn}, logger)
	if err := feed.Start(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start live feed")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	eventRepo := repository.NewEventRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	leaderboardRepo := repository.NewLeaderboardRepository(db, cfg.Scoring.MaxAwardAttempts)

	leaderboardService := service.NewLeaderboardService(leaderboardRepo, submissionRepo, userRepo, redisClient, feed, service.LeaderboardConfig{
		AwardPoints:         cfg.Scoring.AwardPoints,
		FirstAcceptanceOnly: cfg.Scoring.FirstAcceptanceOnly(),
		CacheTTL:            cfg.LeaderboardCacheTTL,
		ReconcileInterval:   cfg.Scoring.ReconcileInterval,
	}, logger)
	eventService := service.NewEventService(eventRepo, redisClient, validate, logger)
	questionService := service.NewQuestionService(eventRepo, questionRepo, generator, feed, validate, logger)
	userService := service.NewUserService(userRepo, validate, logger)
	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Events:      eventRepo,
		Questions:   questionRepo,
		Submissions: submissionRepo,
		Users:       userRepo,
		Leaderboard: leaderboardService,
		Evaluator:   evaluator,
		Verdicts:    verdicts,
		Feed:        feed,
	}, validate, service.SubmissionConfig{EnforceWindow: cfg.Scoring.EnforceWindow}, logger)

	leaderboardService.Start(rootCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		EventHandler:       handler.NewEventHandler(eventService, logger),
		QuestionHandler:    handler.NewQuestionHandler(questionService, feed, logger),
		SubmissionHandler:  handler.NewSubmissionHandler(submissionService, feed, logger),
		LeaderboardHandler: handler.NewLeaderboardHandler(leaderboardService, eventService, feed, logger),
		UserHandler:        handler.NewUserHandler(userService, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		SubmitGuards:       []fiber.Handler{middleware.RateLimit("submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow)},
		HealthProbes:       probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(rootCtx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
