package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coupon grants trial access to a plan. Codes are validated server-side
// only; the stored code is always upper-cased.
type Coupon struct {
	Code        string     `json:"code" gorm:"primaryKey"`
	Description string     `json:"description,omitempty"`
	Plan        string     `json:"plan" gorm:"not null;default:pro"`
	TrialDays   int        `json:"trial_days" gorm:"not null;default:14"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	CurrentUses int        `json:"current_uses" gorm:"not null;default:0"`
	IsActive    bool       `json:"is_active" gorm:"not null;default:true;index"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty" gorm:"type:uuid"`

	Redemptions []CouponRedemption `json:"-" gorm:"foreignKey:CouponCode;references:Code;constraint:OnDelete:RESTRICT"`
}

// IsValid reports whether the coupon can still be redeemed. It does not
// account for per-user redemption history.
func (c *Coupon) IsValid() bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return false
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return false
	}
	return true
}

// CouponRedemption records a single use of a coupon by a user. The unique
// index backs the one-redemption-per-user rule under concurrent requests.
type CouponRedemption struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_coupon"`
	CouponCode string    `json:"coupon_code" gorm:"not null;uniqueIndex:idx_user_coupon"`
	RedeemedAt time.Time `json:"redeemed_at" gorm:"autoCreateTime"`
}

func (r *CouponRedemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
