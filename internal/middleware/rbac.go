package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codearena-api/internal/utils"
)

// RequireRole admits authenticated callers whose token role is one of roles.
// Ownership of a particular event is checked further down, by the services.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	denied := strings.Join(roles, " or ") + " role required"

	return func(c *fiber.Ctx) error {
		if userID, _ := c.Locals(LocalUserID).(string); userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		role, _ := c.Locals(LocalUserRole).(string)
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, denied)
		}
		return c.Next()
	}
}
