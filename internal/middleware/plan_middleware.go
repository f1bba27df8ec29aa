package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"predictium_backend/internal/model"
)

// RequirePlan allows the request through only when the caller's
// subscription is active and on one of the allowed plans. Must run after
// AuthMiddleware.
func RequirePlan(allowedPlans ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals("user").(*model.User)
		sub := user.Subscription
		if sub == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Subscription not found",
			})
		}

		if !sub.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": "Subscription is not active",
			})
		}

		for _, plan := range allowedPlans {
			if sub.Plan == plan {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "This feature requires one of these plans: " + strings.Join(allowedPlans, ", "),
		})
	}
}

// The three canonical plan guards.

func RequireProOrElite() fiber.Handler {
	return RequirePlan(model.PlanPro, model.PlanElite)
}

func RequireElite() fiber.Handler {
	return RequirePlan(model.PlanElite)
}

func RequireAnyActive() fiber.Handler {
	return RequirePlan(model.PlanFree, model.PlanPro, model.PlanElite)
}

// RequireRole gates administrative routes. Must run after AuthMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals("user").(*model.User)
		if user.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"detail": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}
