package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

const submitFailedMessage = "Failed to submit code"

// SubmissionHandler accepts code for evaluation and serves the caller's history.
type SubmissionHandler struct {
	service service.SubmissionService
	feed    realtime.Subscriber
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance. feed may be nil.
func NewSubmissionHandler(service service.SubmissionService, feed realtime.Subscriber, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		feed:    feed,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches routes under /events/:id/questions/:qid/submissions. submitGuards run before a
// submission is accepted, e.g. a rate limiter.
func (h *SubmissionHandler) Register(router fiber.Router, submitGuards ...fiber.Handler) {
	if h.feed != nil {
		router.Get("/live", requireUpgrade, websocket.New(h.live))
	}
	router.Get("", h.history)

	handlers := append(append([]fiber.Handler{}, submitGuards...), h.submit)
	router.Post("", handlers...)
}

// RegisterSolved binds the per-event solved list under /events/:id.
func (h *SubmissionHandler) RegisterSolved(router fiber.Router) {
	router.Get("/solved", h.solved)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Submit(requestContext(c), identityFromContext(c), c.Params("id"), c.Params("qid"), payload)
	if err != nil {
		if errors.Is(err, service.ErrLeaderboardUpdateFailed) {
			logger.Warn().Err(err).Str("submission_id", result.Submission.ID).Msg("submission stored, score pending")
			return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission evaluated, score pending", result)
		}
		return writeError(c, logger, err, submitFailedMessage)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission evaluated", result)
}

func (h *SubmissionHandler) history(c *fiber.Ctx) error {
	submissions, err := h.service.History(requestContext(c), identityFromContext(c), c.Params("id"), c.Params("qid"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load submissions")
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *SubmissionHandler) solved(c *fiber.Ctx) error {
	ids, err := h.service.Solved(requestContext(c), identityFromContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load solved questions")
	}

	return utils.SendSuccess(c, "solved questions retrieved", ids)
}

func (h *SubmissionHandler) live(conn *websocket.Conn) {
	caller := identityFromConn(conn)
	eventID, questionID := conn.Params("id"), conn.Params("qid")
	if caller.UserID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		return
	}

	streamTopic(conn, h.feed, realtime.SubmissionsTopic(eventID, questionID, caller.UserID), func(ctx context.Context) (interface{}, error) {
		return h.service.History(ctx, caller, eventID, questionID)
	}, h.logger)
}
