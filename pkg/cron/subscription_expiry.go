package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"predictium_backend/internal/service"
)

// StartSubscriptionExpiry schedules a daily sweep that expires coupon
// trials whose trial end has passed. Stripe-backed subscriptions are
// transitioned by webhooks and never touched here.
func StartSubscriptionExpiry(ledger *service.Ledger, log zerolog.Logger) *cron.Cron {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := ledger.ExpireLapsedTrials(ctx, time.Now().UTC()); err != nil {
			log.Error().Err(err).Msg("trial expiry sweep failed")
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("could not schedule trial expiry sweep")
		return c
	}

	c.Start()
	return c
}
