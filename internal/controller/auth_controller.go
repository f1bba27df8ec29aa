package controller

import (
	"github.com/gofiber/fiber/v2"

	"predictium_backend/internal/model"
)

// GetMe returns the authenticated user's profile and subscription snapshot.
func GetMe(c *fiber.Ctx) error {
	user := c.Locals("user").(*model.User)

	response := fiber.Map{
		"id":         user.ID.String(),
		"email":      user.Email,
		"role":       user.Role,
		"created_at": user.CreatedAt,
	}
	if user.Subscription != nil {
		response["subscription"] = subscriptionSnapshot(user.Subscription)
	}
	return c.JSON(response)
}

func subscriptionSnapshot(sub *model.Subscription) fiber.Map {
	return fiber.Map{
		"plan":               sub.Plan,
		"status":             sub.Status,
		"is_active":          sub.IsActive(),
		"has_pro_access":     sub.HasProAccess(),
		"has_elite_access":   sub.HasEliteAccess(),
		"trial_ends_at":      sub.TrialEndsAt,
		"current_period_end": sub.CurrentPeriodEnd,
	}
}
