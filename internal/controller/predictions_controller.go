package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"predictium_backend/internal/model"
	"predictium_backend/pkg/predictions"
)

type PredictionsController struct {
	svc *predictions.Service
	log zerolog.Logger
}

func NewPredictionsController(svc *predictions.Service, log zerolog.Logger) *PredictionsController {
	return &PredictionsController{svc: svc, log: log}
}

// Latest serves the latest predictions document. Public endpoint.
func (p *PredictionsController) Latest(c *fiber.Ctx) error {
	doc, err := p.svc.Latest(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"detail": "Predictions are currently unavailable",
		})
	}
	return c.JSON(doc)
}

// GameDetail serves one game's detail document, redacted by the caller's
// subscription tier.
func (p *PredictionsController) GameDetail(c *fiber.Ctx) error {
	user := c.Locals("user").(*model.User)
	gameID := c.Params("id")

	p.log.Info().
		Str("user_id", user.ID.String()).
		Str("game_id", gameID).
		Msg("prediction access")

	doc, err := p.svc.GameDetail(c.UserContext(), gameID)
	if err != nil {
		if predictions.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Game not found: " + gameID,
			})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"detail": "Predictions are currently unavailable",
		})
	}

	return c.JSON(predictions.FilterForPlan(user.Subscription, doc))
}

// Meta serves model metadata derived from the latest predictions. Public.
func (p *PredictionsController) Meta(c *fiber.Ctx) error {
	return c.JSON(p.svc.Meta(c.UserContext()))
}
