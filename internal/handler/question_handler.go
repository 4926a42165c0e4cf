package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// QuestionHandler exposes the questions of an event, including model-drafted ones.
type QuestionHandler struct {
	service service.QuestionService
	feed    realtime.Subscriber
	logger  zerolog.Logger
}

// NewQuestionHandler constructs a question handler. feed may be nil, which disables the live endpoint.
func NewQuestionHandler(service service.QuestionService, feed realtime.Subscriber, logger zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		service: service,
		feed:    feed,
		logger:  logger.With().Str("component", "question_handler").Logger(),
	}
}

// Register binds routes under /events/:id/questions.
func (h *QuestionHandler) Register(router fiber.Router) {
	organizer := middleware.RequireRole(models.RoleOrganizer)

	if h.feed != nil {
		router.Get("/live", requireUpgrade, websocket.New(h.live))
	}
	router.Get("", h.list)
	router.Post("", organizer, h.add)
	router.Post("/generate", organizer, h.generate)
	router.Get("/:qid", h.get)
	router.Delete("/:qid", organizer, h.delete)
}

func (h *QuestionHandler) list(c *fiber.Ctx) error {
	questions, err := h.service.List(requestContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load questions")
	}

	return utils.OK(c, questions, "questions retrieved", fiber.Map{"count": len(questions)})
}

func (h *QuestionHandler) get(c *fiber.Ctx) error {
	question, err := h.service.Get(requestContext(c), c.Params("id"), c.Params("qid"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load the question")
	}

	return utils.SendSuccess(c, "question retrieved", question)
}

func (h *QuestionHandler) add(c *fiber.Ctx) error {
	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	question, err := h.service.Add(requestContext(c), identityFromContext(c), c.Params("id"), payload)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not add the question")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question added", question)
}

func (h *QuestionHandler) generate(c *fiber.Ctx) error {
	var payload dto.QuestionGenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	draft, err := h.service.Generate(requestContext(c), identityFromContext(c), c.Params("id"), payload)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not generate a question")
	}

	return utils.SendSuccess(c, "question drafted", draft)
}

func (h *QuestionHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), identityFromContext(c), c.Params("id"), c.Params("qid")); err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not delete the question")
	}

	return utils.SendSuccess(c, "question deleted", nil)
}

func (h *QuestionHandler) live(conn *websocket.Conn) {
	eventID := conn.Params("id")
	streamTopic(conn, h.feed, realtime.QuestionsTopic(eventID), func(ctx context.Context) (interface{}, error) {
		return h.service.List(ctx, eventID)
	}, h.logger)
}
