package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/beatvault/beatvault-backend/pkg/config"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

// SessionProvider creates and fetches hosted checkout sessions.
type SessionProvider interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

// NewStripeSessions returns a provider backed by stripe-go's checkout/session
// package. The API key must already be installed by pkg/stripe.NewClient.
func NewStripeSessions() SessionProvider {
	return stripeSessions{}
}

func (stripeSessions) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (stripeSessions) Get(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}

// breakerProvider trips after consecutive provider failures so checkout
// fails fast while Stripe is unreachable.
type breakerProvider struct {
	next SessionProvider
	cb   *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

// WithBreaker wraps next in a circuit breaker configured from cfg.
func WithBreaker(next SessionProvider, cfg config.CheckoutConfig, logg *logger.Logger) SessionProvider {
	maxFailures := uint32(5)
	if cfg.BreakerMaxFailures > 0 {
		maxFailures = uint32(cfg.BreakerMaxFailures)
	}
	settings := gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Client mistakes are not provider outages.
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logg == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "checkout breaker state changed")
		},
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	return &breakerProvider{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](settings),
	}
}

func (b *breakerProvider) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return b.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return b.next.Create(ctx, params)
	})
}

func (b *breakerProvider) Get(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return b.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return b.next.Get(ctx, id)
	})
}

func isClientError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429
	}
	return false
}

// providerError maps a provider failure onto the error taxonomy.
func providerError(err error, message string) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
	case isClientError(err):
		var stripeErr *stripe.Error
		errors.As(err, &stripeErr)
		if stripeErr.HTTPStatusCode == 404 {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
}
