package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	service service.UserService
	logger  zerolog.Logger
}

func NewUserHandler(service service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger.With().Str("component", "user_handler").Logger(),
	}
}

func (h *UserHandler) Register(router fiber.Router) {
	router.Get("", h.me)
	router.Put("", h.update)
}

func (h *UserHandler) me(c *fiber.Ctx) error {
	profile, err := h.service.Me(requestContext(c), identityFromContext(c))
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not load the profile")
	}

	return utils.SendSuccess(c, "profile retrieved", profile)
}

func (h *UserHandler) update(c *fiber.Ctx) error {
	var payload dto.ProfileUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	profile, err := h.service.UpdateMe(requestContext(c), identityFromContext(c), payload)
	if err != nil {
		return writeError(c, requestLogger(h.logger, c), err, "Could not update the profile")
	}

	return utils.SendSuccess(c, "profile updated", profile)
}
