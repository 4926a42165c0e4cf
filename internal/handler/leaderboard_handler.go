package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// LeaderboardHandler serves event standings and the award reconciler.
type LeaderboardHandler struct {
	boards service.LeaderboardService
	events service.EventService
	feed   realtime.Subscriber
	logger zerolog.Logger
}

// NewLeaderboardHandler constructs a leaderboard handler. feed may be nil.
func NewLeaderboardHandler(boards service.LeaderboardService, events service.EventService, feed realtime.Subscriber, logger zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		boards: boards,
		events: events,
		feed:   feed,
		logger: logger.With().Str("component", "leaderboard_handler").Logger(),
	}
}

// Register binds routes under /events/:id/leaderboard.
func (h *LeaderboardHandler) Register(router fiber.Router) {
	if h.feed != nil {
		router.Get("/live", requireUpgrade, websocket.New(h.live))
	}
	router.Get("", h.get)
	router.Post("/reconcile", middleware.RequireRole(models.RoleOrganizer), h.reconcile)
}

func (h *LeaderboardHandler) get(c *fiber.Ctx) error {
	board, err := h.boards.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load the leaderboard")
	}

	return utils.SendSuccess(c, "leaderboard retrieved", board)
}

func (h *LeaderboardHandler) reconcile(c *fiber.Ctx) error {
	ctx := requestContext(c)
	logger := requestLogger(h.logger, c)
	eventID := c.Params("id")

	event, err := h.events.Get(ctx, eventID)
	if err != nil {
		return writeError(c, logger, err, "Could not reconcile the leaderboard")
	}
	if event.OrganizerID != identityFromContext(c).UserID {
		return writeError(c, logger, service.ErrForbidden, "")
	}

	summary, err := h.boards.Reconcile(ctx, eventID)
	if err != nil {
		return writeError(c, logger, err, "Could not reconcile the leaderboard")
	}

	logger.Info().Str("event_id", eventID).Int("credited", summary.Credited).Msg("leaderboard reconciled")
	return utils.SendSuccess(c, "leaderboard reconciled", summary)
}

func (h *LeaderboardHandler) live(conn *websocket.Conn) {
	eventID := conn.Params("id")
	streamTopic(conn, h.feed, realtime.LeaderboardTopic(eventID), func(ctx context.Context) (interface{}, error) {
		return h.boards.Get(ctx, eventID)
	}, h.logger)
}
