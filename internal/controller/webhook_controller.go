package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"predictium_backend/internal/service"
	"predictium_backend/pkg/billing"
)

type WebhookController struct {
	ledger  *service.Ledger
	gateway billing.Gateway
	log     zerolog.Logger
}

func NewWebhookController(ledger *service.Ledger, gateway billing.Gateway, log zerolog.Logger) *WebhookController {
	return &WebhookController{ledger: ledger, gateway: gateway, log: log}
}

// HandleStripeWebhook processes subscription lifecycle events from Stripe.
// Signature verification failure is the only client error; processing
// errors are logged and absorbed so Stripe does not retry indefinitely.
func (w *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := w.gateway.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid webhook signature",
		})
	}

	w.log.Info().Str("type", string(event.Type)).Msg("received Stripe webhook")

	if err := w.ledger.ProcessWebhookEvent(c.UserContext(), event); err != nil {
		w.log.Error().Err(err).Str("type", string(event.Type)).Msg("webhook processing failed")
	}

	return c.JSON(fiber.Map{"received": "true"})
}
