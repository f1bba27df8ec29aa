package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"predictium_backend/internal/model"
	"predictium_backend/pkg/billing"
)

// checkoutOutcome reports what applyCheckoutCompleted did with an event.
type checkoutOutcome int

const (
	// checkoutApplied means the subscription row was updated.
	checkoutApplied checkoutOutcome = iota
	// checkoutParked means the event was stored for later replay.
	checkoutParked
	// checkoutSkipped means the payload was unusable and nothing changed.
	checkoutSkipped
)

// ProcessWebhookEvent routes a verified Stripe event to its handler.
// Unknown event types are ignored.
func (l *Ledger) ProcessWebhookEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		_, err := l.applyCheckoutCompleted(ctx, &session, event.Data.Raw)
		return err

	case "customer.subscription.updated":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return l.applySubscriptionUpdated(ctx, &stripeSub)

	case "customer.subscription.deleted":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return l.applySubscriptionDeleted(ctx, &stripeSub)

	default:
		l.log.Debug().Str("type", string(event.Type)).Msg("ignoring webhook event")
		return nil
	}
}

// applyCheckoutCompleted attaches the gateway subscription to the local
// ledger row found by customer id, inside one transaction so concurrent
// events for the same row cannot interleave. When no row carries the
// customer id yet (checkout beat the ledger write) the event is parked for
// replay instead of being dropped.
func (l *Ledger) applyCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession, raw json.RawMessage) (checkoutOutcome, error) {
	if session.Customer == nil || session.Customer.ID == "" {
		l.log.Warn().Msg("checkout completed without customer id")
		return checkoutSkipped, nil
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		l.log.Warn().Str("customer_id", session.Customer.ID).Msg("checkout completed without subscription id")
		return checkoutSkipped, nil
	}
	customerID := session.Customer.ID

	outcome := checkoutApplied
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.Subscription
		err := tx.Where("stripe_customer_id = ?", customerID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.log.Warn().Str("customer_id", customerID).Msg("no subscription for customer, parking checkout event")
			outcome = checkoutParked
			pending := model.PendingCheckout{
				StripeCustomerID: customerID,
				Payload:          datatypes.JSON(raw),
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "stripe_customer_id"}},
				UpdateAll: true,
			}).Create(&pending).Error
		}
		if err != nil {
			return err
		}

		stripeSub, err := l.gateway.RetrieveSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return err
		}

		sub.StripeSubscriptionID = stripeSub.ID
		l.syncFromStripe(&sub, stripeSub)
		return tx.Save(&sub).Error
	})
	if err != nil {
		return checkoutSkipped, err
	}
	if outcome == checkoutApplied {
		l.log.Info().Str("customer_id", customerID).Msg("checkout applied to subscription")
	}
	return outcome, nil
}

func (l *Ledger) applySubscriptionUpdated(ctx context.Context, stripeSub *stripe.Subscription) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.Subscription
		err := tx.Where("stripe_subscription_id = ?", stripeSub.ID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.log.Warn().Str("subscription_id", stripeSub.ID).Msg("no local row for updated subscription")
			return nil
		}
		if err != nil {
			return err
		}

		l.syncFromStripe(&sub, stripeSub)
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		l.log.Info().Str("subscription_id", stripeSub.ID).Str("status", sub.Status).Msg("subscription updated")
		return nil
	})
}

// applySubscriptionDeleted unconditionally drops the subscription to
// free/canceled regardless of the event payload's status.
func (l *Ledger) applySubscriptionDeleted(ctx context.Context, stripeSub *stripe.Subscription) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.Subscription
		err := tx.Where("stripe_subscription_id = ?", stripeSub.ID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.log.Warn().Str("subscription_id", stripeSub.ID).Msg("no local row for deleted subscription")
			return nil
		}
		if err != nil {
			return err
		}

		sub.Plan = model.PlanFree
		sub.Status = model.StatusCanceled
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		l.log.Info().Str("subscription_id", stripeSub.ID).Msg("subscription canceled")
		return nil
	})
}

// ReplayPendingCheckout applies and clears a parked checkout event for a
// customer id, if one exists. Unusable payloads are discarded; a payload
// that parks again (row still missing) is kept for the next attempt.
func (l *Ledger) ReplayPendingCheckout(ctx context.Context, customerID string) error {
	var pending model.PendingCheckout
	err := l.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(pending.Payload, &session); err != nil {
		return fmt.Errorf("decode parked checkout event: %w", err)
	}
	outcome, err := l.applyCheckoutCompleted(ctx, &session, json.RawMessage(pending.Payload))
	if err != nil {
		return err
	}

	switch outcome {
	case checkoutApplied:
		l.log.Info().Str("customer_id", customerID).Msg("replayed parked checkout event")
	case checkoutSkipped:
		l.log.Warn().Str("customer_id", customerID).Msg("discarding unusable parked checkout event")
	case checkoutParked:
		return nil
	}
	return l.db.WithContext(ctx).Delete(&model.PendingCheckout{StripeCustomerID: customerID}).Error
}

// syncFromStripe copies plan, status and period boundaries from the gateway
// subscription onto the ledger row.
func (l *Ledger) syncFromStripe(sub *model.Subscription, stripeSub *stripe.Subscription) {
	priceID := ""
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		priceID = stripeSub.Items.Data[0].Price.ID
	}
	sub.Plan = l.prices.PlanForPrice(priceID)
	sub.Status = billing.StatusFromStripe(stripeSub.Status)

	if stripeSub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &periodEnd
	}
	if stripeSub.TrialEnd > 0 {
		trialEnd := time.Unix(stripeSub.TrialEnd, 0).UTC()
		sub.TrialEndsAt = &trialEnd
	}
}
