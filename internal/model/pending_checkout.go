package model

import (
	"time"

	"gorm.io/datatypes"
)

// PendingCheckout parks a checkout.session.completed event that arrived
// before any local subscription carried its Stripe customer id. The payload
// is replayed once the customer id is attached to a subscription row.
type PendingCheckout struct {
	StripeCustomerID string         `json:"stripe_customer_id" gorm:"primaryKey"`
	Payload          datatypes.JSON `json:"payload"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
