// Package service implements the subscription ledger: user provisioning,
// coupon redemption, webhook-driven state sync and administrative grants.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"predictium_backend/internal/model"
	"predictium_backend/pkg/billing"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrCouponNotFound        = errors.New("invalid coupon code")
	ErrCouponInactive        = errors.New("coupon is no longer active")
	ErrCouponExpired         = errors.New("coupon has expired")
	ErrCouponExhausted       = errors.New("coupon has reached its maximum uses")
	ErrCouponAlreadyRedeemed = errors.New("coupon already redeemed by this user")
)

// Ledger owns all reads and writes against the subscription schema. One
// instance is constructed at startup and injected where needed.
type Ledger struct {
	db            *gorm.DB
	gateway       billing.Gateway
	prices        billing.PriceTable
	defaultPlan   string
	defaultStatus string
	log           zerolog.Logger
}

func NewLedger(db *gorm.DB, gateway billing.Gateway, prices billing.PriceTable, defaultPlan, defaultStatus string, log zerolog.Logger) *Ledger {
	if !model.ValidPlan(defaultPlan) {
		defaultPlan = model.PlanFree
	}
	if defaultStatus != model.StatusTrialing && defaultStatus != model.StatusActive {
		defaultStatus = model.StatusTrialing
	}
	return &Ledger{
		db:            db,
		gateway:       gateway,
		prices:        prices,
		defaultPlan:   defaultPlan,
		defaultStatus: defaultStatus,
		log:           log,
	}
}

// EnsureProvisioned returns the user for a Cognito subject, creating the
// user and a default subscription on first login. The create path is an
// upsert keyed on cognito_id so concurrent first logins collapse to one row.
func (l *Ledger) EnsureProvisioned(ctx context.Context, cognitoID, email string) (*model.User, error) {
	user, err := l.findUser(ctx, cognitoID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newUser := model.User{
			CognitoID: cognitoID,
			Email:     email,
			Role:      model.RoleSubscriber,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cognito_id"}},
			DoNothing: true,
		}).Create(&newUser)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent first login won the insert.
			return nil
		}

		sub := model.Subscription{
			UserID: newUser.ID,
			Plan:   l.defaultPlan,
			Status: l.defaultStatus,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&sub).Error
	})
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}

	l.log.Info().Str("email", email).Msg("provisioned new user")
	return l.findUser(ctx, cognitoID)
}

func (l *Ledger) findUser(ctx context.Context, cognitoID string) (*model.User, error) {
	var user model.User
	err := l.db.WithContext(ctx).
		Preload("Subscription").
		Where("cognito_id = ?", cognitoID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SubscriptionOf loads the subscription row for a user.
func (l *Ledger) SubscriptionOf(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// RedemptionResult reports a successful coupon redemption.
type RedemptionResult struct {
	Plan        string
	TrialDays   int
	TrialEndsAt time.Time
}

// RedeemCoupon validates and applies a coupon for a user. Validation order
// is fixed: existence, active flag, expiry, use ceiling, prior redemption.
// The use counter increment is a conditional update so two concurrent
// redemptions of the last remaining use cannot both succeed.
func (l *Ledger) RedeemCoupon(ctx context.Context, user *model.User, rawCode string) (*RedemptionResult, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return nil, ErrCouponNotFound
	}

	var result RedemptionResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coupon model.Coupon
		if err := tx.First(&coupon, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return err
		}

		if !coupon.IsActive {
			return ErrCouponInactive
		}
		if coupon.ExpiresAt != nil && time.Now().After(*coupon.ExpiresAt) {
			return ErrCouponExpired
		}
		if coupon.MaxUses != nil && coupon.CurrentUses >= *coupon.MaxUses {
			return ErrCouponExhausted
		}

		var redeemed int64
		if err := tx.Model(&model.CouponRedemption{}).
			Where("user_id = ? AND coupon_code = ?", user.ID, code).
			Count(&redeemed).Error; err != nil {
			return err
		}
		if redeemed > 0 {
			return ErrCouponAlreadyRedeemed
		}

		res := tx.Model(&model.Coupon{}).
			Where("code = ? AND (max_uses IS NULL OR current_uses < max_uses)", code).
			UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race for the last remaining use.
			return ErrCouponExhausted
		}

		if err := tx.Create(&model.CouponRedemption{
			UserID:     user.ID,
			CouponCode: code,
		}).Error; err != nil {
			return err
		}

		trialEndsAt := time.Now().UTC().Add(time.Duration(coupon.TrialDays) * 24 * time.Hour)
		var sub model.Subscription
		err := tx.Where("user_id = ?", user.ID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sub = model.Subscription{UserID: user.ID}
		} else if err != nil {
			return err
		}
		sub.Plan = coupon.Plan
		sub.Status = model.StatusTrialing
		sub.TrialEndsAt = &trialEndsAt
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}

		result = RedemptionResult{
			Plan:        coupon.Plan,
			TrialDays:   coupon.TrialDays,
			TrialEndsAt: trialEndsAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("code", code).Str("user_id", user.ID.String()).Str("plan", result.Plan).Msg("coupon redeemed")
	return &result, nil
}

// EnsureStripeCustomer returns the user's Stripe customer id, creating the
// customer on first use. Any checkout event parked for this customer id is
// replayed once the id is attached to the subscription row.
func (l *Ledger) EnsureStripeCustomer(ctx context.Context, user *model.User) (string, error) {
	sub, err := l.SubscriptionOf(ctx, user.ID)
	if err != nil {
		return "", err
	}

	if sub.StripeCustomerID == "" {
		customerID, err := l.gateway.CreateCustomer(ctx, user.Email, user.ID.String())
		if err != nil {
			return "", err
		}
		sub.StripeCustomerID = customerID
		if err := l.db.WithContext(ctx).Save(sub).Error; err != nil {
			return "", err
		}
	}

	if err := l.ReplayPendingCheckout(ctx, sub.StripeCustomerID); err != nil {
		l.log.Error().Err(err).Str("customer_id", sub.StripeCustomerID).Msg("pending checkout replay failed")
	}
	return sub.StripeCustomerID, nil
}

// GrantResult reports an administrative bulk grant.
type GrantResult struct {
	Updated int64
	Created int64
}

// GrantPlanToAll moves every subscription to the given plan and status and
// creates subscriptions for users without one. Replaces the raw-SQL beta
// scripts; callers are responsible for role gating.
func (l *Ledger) GrantPlanToAll(ctx context.Context, actor *model.User, plan, status string) (*GrantResult, error) {
	result := &GrantResult{}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Subscription{}).
			Where("plan <> ? OR status <> ?", plan, status).
			Updates(map[string]any{"plan": plan, "status": status})
		if res.Error != nil {
			return res.Error
		}
		result.Updated = res.RowsAffected

		withSub := tx.Session(&gorm.Session{NewDB: true}).
			Model(&model.Subscription{}).
			Select("user_id")
		var orphans []model.User
		if err := tx.Where("id NOT IN (?)", withSub).Find(&orphans).Error; err != nil {
			return err
		}
		for _, u := range orphans {
			sub := model.Subscription{UserID: u.ID, Plan: plan, Status: status}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
		}
		result.Created = int64(len(orphans))
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("actor", actor.Email).
		Str("plan", plan).
		Str("status", status).
		Int64("updated", result.Updated).
		Int64("created", result.Created).
		Msg("bulk plan grant applied")
	return result, nil
}

// ExpireLapsedTrials marks trialing subscriptions whose trial end has passed
// as expired. Stripe-backed subscriptions are transitioned by webhooks; this
// sweep only catches coupon trials that would otherwise stay active forever.
func (l *Ledger) ExpireLapsedTrials(ctx context.Context, now time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?", model.StatusTrialing, now).
		Where("stripe_subscription_id IS NULL OR stripe_subscription_id = ''").
		Update("status", model.StatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		l.log.Info().Int64("count", res.RowsAffected).Msg("expired lapsed trials")
	}
	return res.RowsAffected, nil
}
