package billing

import (
	"github.com/stripe/stripe-go/v74"

	"predictium_backend/internal/model"
)

// PriceTable maps configured Stripe price ids to internal plans.
type PriceTable struct {
	ProPriceID   string
	ElitePriceID string
}

// PlanForPrice resolves a Stripe price id to a plan, defaulting to free.
func (t PriceTable) PlanForPrice(priceID string) string {
	switch {
	case priceID != "" && priceID == t.ProPriceID:
		return model.PlanPro
	case priceID != "" && priceID == t.ElitePriceID:
		return model.PlanElite
	default:
		return model.PlanFree
	}
}

// PriceForPlan is the inverse lookup; empty means the plan has no
// configured price id.
func (t PriceTable) PriceForPlan(plan string) string {
	switch plan {
	case model.PlanPro:
		return t.ProPriceID
	case model.PlanElite:
		return t.ElitePriceID
	default:
		return ""
	}
}

// StatusFromStripe maps a gateway subscription status to the internal
// lifecycle status. Unmapped statuses fail closed to expired.
func StatusFromStripe(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusTrialing:
		return model.StatusTrialing
	case stripe.SubscriptionStatusActive:
		return model.StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return model.StatusCanceled
	case stripe.SubscriptionStatusIncomplete:
		return model.StatusTrialing
	case stripe.SubscriptionStatusIncompleteExpired:
		return model.StatusExpired
	default:
		return model.StatusExpired
	}
}
