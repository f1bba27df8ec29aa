// Package billing wraps the Stripe API for customer, checkout and portal
// session management plus webhook signature verification.
package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74"
	portalsession "github.com/stripe/stripe-go/v74/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/customer"
	stripesub "github.com/stripe/stripe-go/v74/subscription"
	"github.com/stripe/stripe-go/v74/webhook"
)

// Gateway is the narrow contract the rest of the application has with the
// payment processor. Tests substitute a fake.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

// StripeGateway implements Gateway against the live Stripe API.
type StripeGateway struct {
	webhookSecret string
	log           zerolog.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, log zerolog.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret, log: log}
}

// CreateCustomer creates a Stripe customer tagged with the internal user id.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	c, err := customer.New(params)
	if err != nil {
		g.log.Error().Err(err).Msg("could not create Stripe customer")
		return "", fmt.Errorf("create Stripe customer: %w", err)
	}
	g.log.Info().Str("customer_id", c.ID).Msg("created Stripe customer")
	return c.ID, nil
}

// CreateCheckoutSession starts a subscription checkout and returns its URL.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		g.log.Error().Err(err).Msg("could not create checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	g.log.Info().Str("session_id", s.ID).Msg("created checkout session")
	return s.URL, nil
}

// CreatePortalSession opens the customer portal and returns its URL.
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := portalsession.New(params)
	if err != nil {
		g.log.Error().Err(err).Msg("could not create portal session")
		return "", fmt.Errorf("create portal session: %w", err)
	}
	g.log.Info().Str("customer_id", customerID).Msg("created portal session")
	return s.URL, nil
}

// RetrieveSubscription fetches the current gateway state of a subscription.
func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := stripesub.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}
	return s, nil
}

// VerifyWebhook checks the Stripe-Signature header and parses the event.
func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		g.log.Warn().Err(err).Msg("webhook signature verification failed")
		return stripe.Event{}, fmt.Errorf("invalid webhook signature: %w", err)
	}
	return event, nil
}
