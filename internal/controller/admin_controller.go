package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"predictium_backend/internal/model"
	"predictium_backend/internal/service"
)

type AdminController struct {
	ledger *service.Ledger
	log    zerolog.Logger
}

func NewAdminController(ledger *service.Ledger, log zerolog.Logger) *AdminController {
	return &AdminController{ledger: ledger, log: log}
}

type GrantPlanInput struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

// GrantPlan moves every subscription to the given plan and status. Gated on
// the admin role by the route middleware; every invocation is audited.
func (a *AdminController) GrantPlan(c *fiber.Ctx) error {
	input := new(GrantPlanInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if !model.ValidPlan(input.Plan) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid plan. Must be 'free', 'pro' or 'elite'.",
		})
	}
	if input.Status != model.StatusTrialing && input.Status != model.StatusActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid status. Must be 'trialing' or 'active'.",
		})
	}

	actor := c.Locals("user").(*model.User)
	result, err := a.ledger.GrantPlanToAll(c.UserContext(), actor, input.Plan, input.Status)
	if err != nil {
		a.log.Error().Err(err).Msg("bulk plan grant failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not update subscriptions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"plan":    input.Plan,
		"status":  input.Status,
		"updated": result.Updated,
		"created": result.Created,
	})
}
