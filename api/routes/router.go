package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beatvault/beatvault-backend/api/controllers"
	webhookcontrollers "github.com/beatvault/beatvault-backend/api/controllers/webhooks"
	"github.com/beatvault/beatvault-backend/api/middleware"
	"github.com/beatvault/beatvault-backend/internal/auth"
	"github.com/beatvault/beatvault-backend/internal/cart"
	"github.com/beatvault/beatvault-backend/internal/catalog"
	"github.com/beatvault/beatvault-backend/internal/purchases"
	"github.com/beatvault/beatvault-backend/internal/subscriptions"
	stripewebhook "github.com/beatvault/beatvault-backend/internal/webhooks/stripe"
	"github.com/beatvault/beatvault-backend/pkg/auth/session"
	"github.com/beatvault/beatvault-backend/pkg/config"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	pkgredis "github.com/beatvault/beatvault-backend/pkg/redis"
)

// Cache is the Redis surface used by the HTTP layer.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type webhookReconciler interface {
	Handle(ctx context.Context, payload []byte, signature string) (stripewebhook.Outcome, error)
}

// Deps carries every service the router mounts. A nil Cache disables
// idempotency and rate limiting; nil services answer 500.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Cache         Cache
	Sessions      session.AccessSessionChecker
	Gatherer      prometheus.Gatherer
	Auth          auth.Service
	Catalog       catalog.Service
	Cart          cart.Service
	Checkout      controllers.CheckoutBuilder
	Purchases     purchases.Service
	Subscriptions subscriptions.Service
	Webhooks      webhookReconciler
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          rateLimiter
		cachePinger      controllers.Pinger
	)
	if d.Cache != nil {
		idempotencyStore, limiter, cachePinger = d.Cache, d.Cache, d.Cache
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, cachePinger))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// The webhook reads the raw body, so nothing that consumes it may run first.
	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(d.Webhooks, logg))

	loginPolicy := middleware.NewAuthRateLimitPolicy("login", cfg.AuthRateLimit.LoginWindow, cfg.AuthRateLimit.LoginIPLimit, 0)
	registerPolicy := middleware.NewAuthRateLimitPolicy("register", cfg.AuthRateLimit.RegisterWindow, cfg.AuthRateLimit.RegisterIPLimit, 0)
	requireAuth := middleware.Auth(cfg.JWT, d.Sessions, logg)
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimit(registerPolicy, limiter, logg), idempotent).Post("/register", controllers.AuthRegister(d.Auth, logg))
			r.With(rateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
			r.With(requireAuth).Post("/logout", controllers.AuthLogout(d.Auth, logg))
		})

		r.Route("/licenses", func(r chi.Router) {
			r.Get("/", controllers.LicenseList(d.Catalog, logg))
			r.Get("/{licenseId}", controllers.LicenseDetail(d.Catalog, logg))
		})

		r.Route("/compositions", func(r chi.Router) {
			r.Get("/", controllers.CompositionList(d.Catalog, logg))
			r.Get("/{compositionId}", controllers.CompositionDetail(d.Catalog, logg))
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, idempotent)
				r.Post("/", controllers.CompositionCreate(d.Catalog, logg))
				r.Put("/{compositionId}", controllers.CompositionUpdate(d.Catalog, logg))
				r.Delete("/{compositionId}", controllers.CompositionDelete(d.Catalog, logg))
				r.Post("/{compositionId}/listens", controllers.CompositionListen(d.Catalog, logg))
				r.Get("/{compositionId}/download", controllers.CompositionDownload(d.Purchases, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, idempotent)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(d.Cart, logg))
				r.Post("/", controllers.CartAdd(d.Cart, logg))
				r.Put("/", controllers.CartReplace(d.Cart, logg))
				r.Put("/license", controllers.CartSetLicense(d.Cart, logg))
				r.Delete("/", controllers.CartRemove(d.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", controllers.Checkout(d.Checkout, logg))
				r.Post("/cart", controllers.CheckoutCart(d.Checkout, logg))
				r.Get("/verify", controllers.CheckoutVerify(d.Purchases, logg))
			})

			r.Route("/purchases", func(r chi.Router) {
				r.Get("/", controllers.PurchaseList(d.Purchases, logg))
				r.Get("/{purchaseId}", controllers.PurchaseDetail(d.Purchases, logg))
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/checkout", controllers.SubscriptionCheckout(d.Subscriptions, logg))
				r.Post("/cancel", controllers.SubscriptionCancel(d.Subscriptions, logg))
				r.Get("/me", controllers.SubscriptionStatus(d.Subscriptions, logg))
			})
		})
	})

	return r
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func rateLimit(policy middleware.AuthRateLimitPolicy, limiter rateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.AuthRateLimit(policy, limiter, logg)
}
