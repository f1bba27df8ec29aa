package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"predictium_backend/internal/service"
	"predictium_backend/pkg/auth"
)

// TokenValidator is the slice of the Cognito verifier the middleware needs.
type TokenValidator interface {
	UserInfo(token string) (auth.Claims, error)
}

// AuthMiddleware validates the bearer token and loads (provisioning on
// first login) the matching user into c.Locals("user").
func AuthMiddleware(verifier TokenValidator, ledger *service.Ledger, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := extractBearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "Missing or malformed authorization header",
			})
		}

		claims, err := verifier.UserInfo(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"detail": "Invalid or expired token",
			})
		}

		user, err := ledger.EnsureProvisioned(c.UserContext(), claims.Sub, claims.Email)
		if err != nil {
			log.Error().Err(err).Msg("could not provision user")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"detail": "Could not load user",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
