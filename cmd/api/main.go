package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/beatvault/beatvault-backend/api/routes"
	"github.com/beatvault/beatvault-backend/internal/auth"
	"github.com/beatvault/beatvault-backend/internal/cart"
	"github.com/beatvault/beatvault-backend/internal/catalog"
	"github.com/beatvault/beatvault-backend/internal/checkout"
	"github.com/beatvault/beatvault-backend/internal/purchases"
	"github.com/beatvault/beatvault-backend/internal/subscriptions"
	"github.com/beatvault/beatvault-backend/internal/users"
	stripewebhook "github.com/beatvault/beatvault-backend/internal/webhooks/stripe"
	"github.com/beatvault/beatvault-backend/pkg/auth/session"
	"github.com/beatvault/beatvault-backend/pkg/config"
	"github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/instance"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/metrics"
	"github.com/beatvault/beatvault-backend/pkg/migrate"
	"github.com/beatvault/beatvault-backend/pkg/outbox"
	"github.com/beatvault/beatvault-backend/pkg/redis"
	pkgstripe "github.com/beatvault/beatvault-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(promRegistry)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	purchasesRepo := purchases.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	exitOnErr(logg, "failed to create auth service", err)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()), dbClient, redisClient, cfg.Catalog.ListenDedupWindow)
	exitOnErr(logg, "failed to create catalog service", err)

	cartService, err := cart.NewService(cartRepo, dbClient, catalogService)
	exitOnErr(logg, "failed to create cart service", err)

	successURL, cancelURL := stripeClient.RedirectURLs()
	builder, err := checkout.NewBuilder(checkout.BuilderParams{
		Provider: checkout.WithBreaker(checkout.NewStripeSessions(), cfg.Checkout, logg),
		Carts:    cartService,
		Catalog:  catalogService,
		Settings: checkout.Settings{
			Currency:            stripeClient.Currency(),
			SuccessURL:          successURL,
			CancelURL:           cancelURL,
			SubscriptionPriceID: stripeClient.SubscriptionPriceID(),
		},
		Metrics: fulfillmentMetrics,
		Logger:  logg,
	})
	exitOnErr(logg, "failed to create checkout builder", err)

	purchasesService, err := purchases.NewService(purchasesRepo, builder, catalogService)
	exitOnErr(logg, "failed to create purchases service", err)

	lifecycle, err := subscriptions.NewLifecycle(dbClient, usersRepo, outboxService)
	exitOnErr(logg, "failed to create subscription lifecycle", err)

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Users:     usersRepo,
		Builder:   builder,
		Stripe:    subscriptions.NewStripeClient(stripeClient),
		Lifecycle: lifecycle,
	})
	exitOnErr(logg, "failed to create subscriptions service", err)

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.EventGuardTTL, "stripe-event")
	exitOnErr(logg, "failed to create webhook guard", err)

	reconciler, err := stripewebhook.NewReconciler(stripewebhook.ReconcilerParams{
		SigningSecret: stripeClient.SigningSecret(),
		Transactions:  dbClient,
		Purchases:     purchasesRepo,
		Carts:         cartRepo,
		Outbox:        outboxService,
		Subscriptions: lifecycle,
		Guard:         guard,
		Metrics:       fulfillmentMetrics,
		Logger:        logg,
	})
	exitOnErr(logg, "failed to create webhook reconciler", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Cache:         redisClient,
			Sessions:      sessionManager,
			Gatherer:      promRegistry,
			Auth:          authService,
			Catalog:       catalogService,
			Cart:          cartService,
			Checkout:      builder,
			Purchases:     purchasesService,
			Subscriptions: subscriptionsService,
			Webhooks:      reconciler,
		}),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
