package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// EventHandler exposes event management endpoints.
type EventHandler struct {
	service service.EventService
	logger  zerolog.Logger
}

// NewEventHandler constructs an event handler.
func NewEventHandler(service service.EventService, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		logger:  logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds event routes. Mutations require the organizer role; ownership is checked by the service.
func (h *EventHandler) Register(router fiber.Router) {
	organizer := middleware.RequireRole(models.RoleOrganizer)

	router.Get("", h.list)
	router.Post("", organizer, h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", organizer, h.update)
	router.Delete("/:id", organizer, h.delete)
}

func (h *EventHandler) list(c *fiber.Ctx) error {
	organizerID := ""
	if parseQueryBool(c, "mine") {
		organizerID = identityFromContext(c).UserID
	}

	events, err := h.service.List(requestContext(c), organizerID)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load events")
	}

	return utils.OK(c, events, "events retrieved", fiber.Map{"count": len(events)})
}

func (h *EventHandler) create(c *fiber.Ctx) error {
	var payload dto.EventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	event, err := h.service.Create(requestContext(c), identityFromContext(c), payload)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not create the event")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "event created", event)
}

func (h *EventHandler) get(c *fiber.Ctx) error {
	event, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load the event")
	}

	return utils.SendSuccess(c, "event retrieved", event)
}

func (h *EventHandler) update(c *fiber.Ctx) error {
	var payload dto.EventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	event, err := h.service.Update(requestContext(c), identityFromContext(c), c.Params("id"), payload)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not update the event")
	}

	return utils.SendSuccess(c, "event updated", event)
}

func (h *EventHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), identityFromContext(c), c.Params("id")); err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not delete the event")
	}

	return utils.SendSuccess(c, "event deleted", nil)
}
