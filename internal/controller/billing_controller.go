package controller

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"predictium_backend/internal/model"
	"predictium_backend/internal/service"
	"predictium_backend/pkg/billing"
)

type BillingController struct {
	ledger  *service.Ledger
	gateway billing.Gateway
	prices  billing.PriceTable
	log     zerolog.Logger
}

func NewBillingController(ledger *service.Ledger, gateway billing.Gateway, prices billing.PriceTable, log zerolog.Logger) *BillingController {
	return &BillingController{ledger: ledger, gateway: gateway, prices: prices, log: log}
}

type RedeemCouponInput struct {
	Code string `json:"code"`
}

type CheckoutSessionInput struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type PortalSessionInput struct {
	ReturnURL string `json:"return_url"`
}

// GetSubscription returns the caller's current subscription state.
func (b *BillingController) GetSubscription(c *fiber.Ctx) error {
	user := c.Locals("user").(*model.User)

	sub, err := b.ledger.SubscriptionOf(c.UserContext(), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not load subscription",
		})
	}

	snapshot := subscriptionSnapshot(sub)
	snapshot["stripe_customer_id"] = sub.StripeCustomerID
	return c.JSON(snapshot)
}

// RedeemCoupon validates and applies a coupon code for the caller.
func (b *BillingController) RedeemCoupon(c *fiber.Ctx) error {
	input := new(RedeemCouponInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	user := c.Locals("user").(*model.User)
	result, err := b.ledger.RedeemCoupon(c.UserContext(), user, input.Code)
	if err != nil {
		if detail, ok := couponErrorDetail(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": detail})
		}
		b.log.Error().Err(err).Msg("coupon redemption failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not redeem coupon",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Coupon applied! You now have %d days of %s access.",
			result.TrialDays, cases.Title(language.English).String(result.Plan)),
		"plan":          result.Plan,
		"trial_ends_at": result.TrialEndsAt,
	})
}

func couponErrorDetail(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrCouponNotFound):
		return "Invalid coupon code", true
	case errors.Is(err, service.ErrCouponInactive):
		return "This coupon is no longer active", true
	case errors.Is(err, service.ErrCouponExpired):
		return "This coupon has expired", true
	case errors.Is(err, service.ErrCouponExhausted):
		return "This coupon has reached its maximum uses", true
	case errors.Is(err, service.ErrCouponAlreadyRedeemed):
		return "You have already redeemed this coupon", true
	default:
		return "", false
	}
}

// CreateCheckoutSession starts a Stripe checkout for a paid plan.
func (b *BillingController) CreateCheckoutSession(c *fiber.Ctx) error {
	input := new(CheckoutSessionInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if input.Plan != model.PlanPro && input.Plan != model.PlanElite {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid plan. Must be 'pro' or 'elite'.",
		})
	}
	if input.SuccessURL == "" || input.CancelURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "success_url and cancel_url are required",
		})
	}

	priceID := b.prices.PriceForPlan(input.Plan)
	if priceID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Stripe price ID not configured for this plan",
		})
	}

	user := c.Locals("user").(*model.User)
	customerID, err := b.ledger.EnsureStripeCustomer(c.UserContext(), user)
	if err != nil {
		b.log.Error().Err(err).Msg("could not ensure Stripe customer")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not create checkout session",
		})
	}

	checkoutURL, err := b.gateway.CreateCheckoutSession(c.UserContext(), customerID, priceID, input.SuccessURL, input.CancelURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not create checkout session",
		})
	}

	return c.JSON(fiber.Map{"checkout_url": checkoutURL})
}

// CreatePortalSession opens the Stripe customer portal for the caller.
func (b *BillingController) CreatePortalSession(c *fiber.Ctx) error {
	input := new(PortalSessionInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	user := c.Locals("user").(*model.User)
	sub, err := b.ledger.SubscriptionOf(c.UserContext(), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Subscription not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not load subscription",
		})
	}

	if sub.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "No Stripe customer found. Please subscribe first.",
		})
	}

	portalURL, err := b.gateway.CreatePortalSession(c.UserContext(), sub.StripeCustomerID, input.ReturnURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Could not create portal session",
		})
	}

	return c.JSON(fiber.Map{"portal_url": portalURL})
}
