package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/middleware"
	"github.com/noah-isme/codearena-api/internal/repository"
	"github.com/noah-isme/codearena-api/internal/service"
	"github.com/noah-isme/codearena-api/internal/utils"
	"github.com/noah-isme/codearena-api/pkg/ai"
)

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func identityFromLocals(locals func(key string) interface{}) service.Identity {
	str := func(key string) string {
		value, _ := locals(key).(string)
		return strings.TrimSpace(value)
	}
	return service.Identity{
		UserID: str(middleware.LocalUserID),
		Name:   str(middleware.LocalUserName),
		Role:   strings.ToLower(str(middleware.LocalUserRole)),
	}
}

func identityFromContext(c *fiber.Ctx) service.Identity {
	return identityFromLocals(func(key string) interface{} { return c.Locals(key) })
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) zerolog.Logger {
	if c == nil {
		return base
	}
	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		return base.With().Str("correlation_id", correlation).Logger()
	}
	return base
}

func parseQueryBool(c *fiber.Ctx, key string) bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func validationDetails(errs validator.ValidationErrors) []FieldError {
	details := make([]FieldError, 0, len(errs))
	for _, fieldErr := range errs {
		details = append(details, FieldError{
			Field: fieldErr.Field(),
			Rule:  fieldErr.Tag(),
			Param: fieldErr.Param(),
		})
	}
	return details
}

// writeError maps domain errors to HTTP statuses. fallback is the user-facing message for
// failures the caller cannot fix.
func writeError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrInvalidSource):
		return utils.SendError(c, fiber.StatusBadRequest, "code must be plain text")
	case errors.Is(err, service.ErrEventNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "event not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "profile not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "only the event organizer can do this")
	case errors.Is(err, service.ErrEventNotActive):
		return utils.SendError(c, fiber.StatusConflict, "event is not accepting submissions")
	case errors.Is(err, repository.ErrLeaderboardNotFound):
		return utils.SendError(c, fiber.StatusPreconditionFailed, "event has no leaderboard")
	case errors.Is(err, repository.ErrLeaderboardConflict):
		return utils.SendError(c, fiber.StatusConflict, "leaderboard is busy, retry shortly")
	case errors.Is(err, ai.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, fallback)
	case errors.Is(err, ai.ErrTimeout):
		logger.Warn().Err(err).Msg("model call timed out")
		return utils.SendError(c, fiber.StatusGatewayTimeout, fallback)
	case errors.Is(err, ai.ErrMalformedModelResponse):
		logger.Warn().Err(err).Msg("model reply rejected")
		return utils.SendError(c, fiber.StatusBadGateway, fallback)
	case errors.Is(err, ai.ErrTransientService),
		errors.Is(err, service.ErrGeneratorUnavailable),
		errors.Is(err, service.ErrEvaluatorUnavailable):
		logger.Warn().Err(err).Msg("model unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, fallback)
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
