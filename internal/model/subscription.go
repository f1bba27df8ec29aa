package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanElite = "elite"
)

const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// ValidPlan reports whether p is one of the known subscription plans.
func ValidPlan(p string) bool {
	return p == PlanFree || p == PlanPro || p == PlanElite
}

// Subscription is the single source of truth for a user's access rights,
// kept in sync with Stripe by the webhook handlers. One row per user;
// never deleted, only status-transitioned.
type Subscription struct {
	ID                   uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty" gorm:"index"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	Plan                 string     `json:"plan" gorm:"not null;default:free"`
	Status               string     `json:"status" gorm:"not null;default:trialing;index"`
	TrialEndsAt          *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the subscription currently grants any access.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusTrialing || s.Status == StatusActive
}

// HasProAccess reports whether the subscription grants Pro-level content.
func (s *Subscription) HasProAccess() bool {
	return s.IsActive() && (s.Plan == PlanPro || s.Plan == PlanElite)
}

// HasEliteAccess reports whether the subscription grants Elite-level content.
func (s *Subscription) HasEliteAccess() bool {
	return s.IsActive() && s.Plan == PlanElite
}
