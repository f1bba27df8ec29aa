package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	glebsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/gorm"

	"predictium_backend/internal/model"
	"predictium_backend/pkg/billing"
)

type fakeGateway struct {
	mu               sync.Mutex
	customerID       string
	createdCustomers int
	subscription     *stripe.Subscription
	retrieveErr      error
	event            stripe.Event
	verifyErr        error
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCustomers++
	return f.customerID, nil
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	return "https://checkout.stripe.example/session", nil
}

func (f *fakeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.stripe.example/session", nil
}

func (f *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return f.subscription, nil
}

func (f *fakeGateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	if f.verifyErr != nil {
		return stripe.Event{}, f.verifyErr
	}
	return f.event, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(glebsqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Single connection keeps the in-memory database shared and serializes
	// concurrent transactions the way a row lock would.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.Coupon{},
		&model.CouponRedemption{},
		&model.PendingCheckout{},
	))
	return db
}

func newTestLedger(t *testing.T, gw billing.Gateway) *Ledger {
	t.Helper()
	prices := billing.PriceTable{ProPriceID: "price_pro", ElitePriceID: "price_elite"}
	return NewLedger(newTestDB(t), gw, prices, model.PlanFree, model.StatusTrialing, zerolog.Nop())
}

func provisionUser(t *testing.T, l *Ledger, cognitoID, email string) *model.User {
	t.Helper()
	user, err := l.EnsureProvisioned(context.Background(), cognitoID, email)
	require.NoError(t, err)
	return user
}

func TestEnsureProvisioned(t *testing.T) {
	l := newTestLedger(t, &fakeGateway{})
	ctx := context.Background()

	t.Run("creates user and default subscription on first login", func(t *testing.T) {
		user, err := l.EnsureProvisioned(ctx, "cognito-1", "one@example.com")
		require.NoError(t, err)
		assert.Equal(t, model.RoleSubscriber, user.Role)
		require.NotNil(t, user.Subscription)
		assert.Equal(t, model.PlanFree, user.Subscription.Plan)
		assert.Equal(t, model.StatusTrialing, user.Subscription.Status)
	})

	t.Run("is idempotent", func(t *testing.T) {
		first, err := l.EnsureProvisioned(ctx, "cognito-2", "two@example.com")
		require.NoError(t, err)
		second, err := l.EnsureProvisioned(ctx, "cognito-2", "two@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var count int64
		require.NoError(t, l.db.Model(&model.User{}).Where("cognito_id = ?", "cognito-2").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("concurrent first logins create a single row", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.EnsureProvisioned(ctx, "cognito-3", "three@example.com")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var users, subs int64
		require.NoError(t, l.db.Model(&model.User{}).Where("cognito_id = ?", "cognito-3").Count(&users).Error)
		assert.Equal(t, int64(1), users)
		var user model.User
		require.NoError(t, l.db.Where("cognito_id = ?", "cognito-3").First(&user).Error)
		require.NoError(t, l.db.Model(&model.Subscription{}).Where("user_id = ?", user.ID).Count(&subs).Error)
		assert.Equal(t, int64(1), subs)
	})
}

func TestRedeemCoupon(t *testing.T) {
	ctx := context.Background()

	seedCoupon := func(t *testing.T, l *Ledger, c model.Coupon) {
		t.Helper()
		require.NoError(t, l.db.Create(&c).Error)
	}

	t.Run("success applies plan and trial window", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-1", "u1@example.com")
		seedCoupon(t, l, model.Coupon{Code: "BETA10", Plan: model.PlanPro, TrialDays: 14, IsActive: true})

		result, err := l.RedeemCoupon(ctx, user, "beta10")
		require.NoError(t, err)
		assert.Equal(t, model.PlanPro, result.Plan)
		assert.Equal(t, 14, result.TrialDays)
		assert.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), result.TrialEndsAt, time.Minute)

		sub, err := l.SubscriptionOf(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PlanPro, sub.Plan)
		assert.Equal(t, model.StatusTrialing, sub.Status)
		require.NotNil(t, sub.TrialEndsAt)

		var coupon model.Coupon
		require.NoError(t, l.db.First(&coupon, "code = ?", "BETA10").Error)
		assert.Equal(t, 1, coupon.CurrentUses)
	})

	t.Run("unknown code", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-2", "u2@example.com")

		_, err := l.RedeemCoupon(ctx, user, "NOPE")
		assert.ErrorIs(t, err, ErrCouponNotFound)
	})

	t.Run("inactive coupon", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-3", "u3@example.com")
		seedCoupon(t, l, model.Coupon{Code: "DEAD", Plan: model.PlanPro, TrialDays: 7, IsActive: false})

		_, err := l.RedeemCoupon(ctx, user, "DEAD")
		assert.ErrorIs(t, err, ErrCouponInactive)
	})

	t.Run("expired coupon", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-4", "u4@example.com")
		past := time.Now().Add(-time.Hour)
		seedCoupon(t, l, model.Coupon{Code: "LATE", Plan: model.PlanPro, TrialDays: 7, IsActive: true, ExpiresAt: &past})

		_, err := l.RedeemCoupon(ctx, user, "LATE")
		assert.ErrorIs(t, err, ErrCouponExpired)
	})

	t.Run("exhausted coupon", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-5", "u5@example.com")
		one := 1
		seedCoupon(t, l, model.Coupon{Code: "FULL", Plan: model.PlanPro, TrialDays: 7, IsActive: true, MaxUses: &one, CurrentUses: 1})

		_, err := l.RedeemCoupon(ctx, user, "FULL")
		assert.ErrorIs(t, err, ErrCouponExhausted)
	})

	t.Run("second redemption by same user fails", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-6", "u6@example.com")
		seedCoupon(t, l, model.Coupon{Code: "ONCE", Plan: model.PlanElite, TrialDays: 7, IsActive: true})

		_, err := l.RedeemCoupon(ctx, user, "ONCE")
		require.NoError(t, err)
		_, err = l.RedeemCoupon(ctx, user, "once")
		assert.ErrorIs(t, err, ErrCouponAlreadyRedeemed)
	})

	t.Run("code is normalized before lookup", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		user := provisionUser(t, l, "u-7", "u7@example.com")
		seedCoupon(t, l, model.Coupon{Code: "TRIM", Plan: model.PlanPro, TrialDays: 7, IsActive: true})

		_, err := l.RedeemCoupon(ctx, user, "  trim  ")
		require.NoError(t, err)
	})

	t.Run("concurrent redemption of last use yields exactly one success", func(t *testing.T) {
		l := newTestLedger(t, &fakeGateway{})
		alice := provisionUser(t, l, "u-8a", "alice@example.com")
		bob := provisionUser(t, l, "u-8b", "bob@example.com")
		one := 1
		seedCoupon(t, l, model.Coupon{Code: "LAST", Plan: model.PlanPro, TrialDays: 7, IsActive: true, MaxUses: &one})

		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for _, user := range []*model.User{alice, bob} {
			wg.Add(1)
			go func(u *model.User) {
				defer wg.Done()
				_, err := l.RedeemCoupon(ctx, u, "LAST")
				errs <- err
			}(user)
		}
		wg.Wait()
		close(errs)

		var successes, exhausted int
		for err := range errs {
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrCouponExhausted):
				exhausted++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, exhausted)

		var coupon model.Coupon
		require.NoError(t, l.db.First(&coupon, "code = ?", "LAST").Error)
		assert.Equal(t, 1, coupon.CurrentUses)
	})
}

func TestExpireLapsedTrials(t *testing.T) {
	l := newTestLedger(t, &fakeGateway{})
	ctx := context.Background()

	lapsed := provisionUser(t, l, "t-1", "t1@example.com")
	current := provisionUser(t, l, "t-2", "t2@example.com")
	stripeBacked := provisionUser(t, l, "t-3", "t3@example.com")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, l.db.Model(&model.Subscription{}).Where("user_id = ?", lapsed.ID).
		Updates(map[string]any{"status": model.StatusTrialing, "trial_ends_at": past}).Error)
	require.NoError(t, l.db.Model(&model.Subscription{}).Where("user_id = ?", current.ID).
		Updates(map[string]any{"status": model.StatusTrialing, "trial_ends_at": future}).Error)
	// Stripe owns this one: the renewal webhook may simply not have landed yet.
	require.NoError(t, l.db.Model(&model.Subscription{}).Where("user_id = ?", stripeBacked.ID).
		Updates(map[string]any{
			"status":                 model.StatusTrialing,
			"trial_ends_at":          past,
			"stripe_subscription_id": "sub_live",
		}).Error)

	count, err := l.ExpireLapsedTrials(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	sub, err := l.SubscriptionOf(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, sub.Status)

	sub, err = l.SubscriptionOf(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTrialing, sub.Status)

	sub, err = l.SubscriptionOf(ctx, stripeBacked.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTrialing, sub.Status)
}

func TestGrantPlanToAll(t *testing.T) {
	l := newTestLedger(t, &fakeGateway{})
	ctx := context.Background()

	admin := provisionUser(t, l, "g-admin", "admin@example.com")
	provisionUser(t, l, "g-1", "g1@example.com")
	provisionUser(t, l, "g-2", "g2@example.com")

	// One user without a subscription row.
	orphan := model.User{CognitoID: "g-orphan", Email: "orphan@example.com", Role: model.RoleSubscriber}
	require.NoError(t, l.db.Create(&orphan).Error)

	result, err := l.GrantPlanToAll(ctx, admin, model.PlanElite, model.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Updated)
	assert.Equal(t, int64(1), result.Created)

	var subs []model.Subscription
	require.NoError(t, l.db.Find(&subs).Error)
	require.Len(t, subs, 4)
	for _, sub := range subs {
		assert.Equal(t, model.PlanElite, sub.Plan)
		assert.Equal(t, model.StatusActive, sub.Status)
	}
}
