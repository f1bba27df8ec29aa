package main

import (
	"context"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog"

	"predictium_backend/internal/controller"
	"predictium_backend/internal/middleware"
	"predictium_backend/internal/model"
	"predictium_backend/internal/service"
	"predictium_backend/pkg/auth"
	"predictium_backend/pkg/billing"
	"predictium_backend/pkg/config"
	"predictium_backend/pkg/cron"
	"predictium_backend/pkg/database"
	"predictium_backend/pkg/predictions"
)

func setupRoutes(
	app *fiber.App,
	authMW fiber.Handler,
	pred *controller.PredictionsController,
	billingCtl *controller.BillingController,
	webhookCtl *controller.WebhookController,
	adminCtl *controller.AdminController,
) {
	app.Get("/", controller.Root)
	app.Get("/health", controller.Health)
	app.Get("/meta", pred.Meta)

	// Predictions
	app.Get("/predictions/latest", pred.Latest)
	app.Get("/predictions/games/:id", authMW, pred.GameDetail)

	// Auth
	app.Get("/auth/me", authMW, controller.GetMe)

	// Billing
	billingGroup := app.Group("/billing", authMW)
	billingGroup.Get("/subscription", billingCtl.GetSubscription)
	billingGroup.Post("/redeem-coupon", billingCtl.RedeemCoupon)
	billingGroup.Post("/create-checkout-session", billingCtl.CreateCheckoutSession)
	billingGroup.Post("/create-portal-session", billingCtl.CreatePortalSession)

	// Stripe webhook (signature-verified, no bearer auth)
	app.Post("/webhooks/stripe", webhookCtl.HandleStripeWebhook)

	// Admin
	adminGroup := app.Group("/admin", authMW, middleware.RequireRole(model.RoleAdmin))
	adminGroup.Post("/grant-plan", adminCtl.GrantPlan)
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load configuration")
	}
	log.Info().Str("env", cfg.Server.AppEnv).Msg("starting Predictium API")

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	if err := database.Migrate(db,
		&model.User{},
		&model.Subscription{},
		&model.Coupon{},
		&model.CouponRedemption{},
		&model.PendingCheckout{},
	); err != nil {
		log.Fatal().Err(err).Msg("could not migrate database")
	}

	verifier, err := auth.NewVerifier(cfg.Cognito.Issuer(), cfg.Cognito.ClientID, cfg.Cognito.JWKSURL(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize token verifier")
	}

	s3Client, err := predictions.NewS3Client(context.Background(), cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize S3 client")
	}
	store := predictions.NewS3Store(s3Client, cfg.S3.Bucket, log)
	predSvc := predictions.NewService(store, predictions.DefaultTTL, log)

	gateway := billing.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, log)
	prices := billing.PriceTable{
		ProPriceID:   cfg.Stripe.ProPriceID,
		ElitePriceID: cfg.Stripe.ElitePriceID,
	}

	ledger := service.NewLedger(db, gateway, prices, cfg.DefaultPlan, cfg.DefaultPlanStatus, log)
	cron.StartSubscriptionExpiry(ledger, log)

	app := fiber.New(fiber.Config{
		AppName: "Predictium API",
	})
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.CORSOrigins(), ","),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
	}))

	authMW := middleware.AuthMiddleware(verifier, ledger, log)
	predCtl := controller.NewPredictionsController(predSvc, log)
	billingCtl := controller.NewBillingController(ledger, gateway, prices, log)
	webhookCtl := controller.NewWebhookController(ledger, gateway, log)
	adminCtl := controller.NewAdminController(ledger, log)

	setupRoutes(app, authMW, predCtl, billingCtl, webhookCtl, adminCtl)

	log.Info().Str("port", cfg.Server.Port).Msg("server listening")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
