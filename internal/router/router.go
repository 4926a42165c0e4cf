package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codearena-api/internal/config"
	"github.com/noah-isme/codearena-api/internal/handler"
	"github.com/noah-isme/codearena-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EventHandler       *handler.EventHandler
	QuestionHandler    *handler.QuestionHandler
	SubmissionHandler  *handler.SubmissionHandler
	LeaderboardHandler *handler.LeaderboardHandler
	UserHandler        *handler.UserHandler
	JWTMiddleware      fiber.Handler
	// SubmitGuards run before a submission is evaluated, e.g. the rate limiter.
	SubmitGuards []fiber.Handler
	HealthProbes map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UserHandler != nil {
		deps.UserHandler.Register(api.Group("/me", jwtMiddleware))
	}

	if deps.EventHandler == nil {
		return
	}

	events := api.Group("/events", jwtMiddleware)

	// Nested groups first so "/:id" does not shadow them.
	if deps.QuestionHandler != nil {
		questions := events.Group("/:id/questions")
		if deps.SubmissionHandler != nil {
			deps.SubmissionHandler.Register(questions.Group("/:qid/submissions"), deps.SubmitGuards...)
		}
		deps.QuestionHandler.Register(questions)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterSolved(events.Group("/:id"))
	}

	if deps.LeaderboardHandler != nil {
		deps.LeaderboardHandler.Register(events.Group("/:id/leaderboard"))
	}

	deps.EventHandler.Register(events)
}
