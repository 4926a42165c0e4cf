package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newJWTApp(captured *map[string]interface{}) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		*captured = map[string]interface{}{
			"id":   c.Locals(LocalUserID),
			"name": c.Locals(LocalUserName),
			"role": c.Locals(LocalUserRole),
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestJWTProtectedPopulatesLocals(t *testing.T) {
	var captured map[string]interface{}
	app := newJWTApp(&captured)

	token := signToken(t, jwt.MapClaims{"sub": "firebase-uid-1", "name": "Alice", "role": "Organizer", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "firebase-uid-1", captured["id"])
	require.Equal(t, "Alice", captured["name"])
	require.Equal(t, "organizer", captured["role"])
}

func TestJWTProtectedAcceptsQueryTokenForUpgrades(t *testing.T) {
	var captured map[string]interface{}
	app := newJWTApp(&captured)

	token := signToken(t, jwt.MapClaims{"sub": "u2"})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "u2", captured["id"])
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	var captured map[string]interface{}
	app := newJWTApp(&captured)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad signature":  "Bearer " + signWith(t, "other-secret"),
		"no subject":     "Bearer " + signToken(t, jwt.MapClaims{"name": "Nobody"}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func signWith(t *testing.T, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
