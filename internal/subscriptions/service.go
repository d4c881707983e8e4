// Package subscriptions manages the pro plan: starting it through hosted
// checkout, cancelling it at Stripe and mirroring its state onto users.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/beatvault/beatvault-backend/internal/checkout"
	"github.com/beatvault/beatvault-backend/internal/users"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type sessionBuilder interface {
	BuildSubscription(ctx context.Context, userID uuid.UUID) (checkout.Session, error)
}

// Service defines the subscription lifecycle surface.
type Service interface {
	Start(ctx context.Context, userID uuid.UUID) (checkout.Session, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*StatusDTO, error)
	Status(ctx context.Context, userID uuid.UUID) (*StatusDTO, error)
}

// StatusDTO is the caller's view of their plan.
type StatusDTO struct {
	Role               enums.UserRole           `json:"role"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionID     *string                  `json:"subscriptionId,omitempty"`
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Users     *users.Repository
	Builder   sessionBuilder
	Stripe    StripeSubscriptionClient
	Lifecycle *Lifecycle
}

type service struct {
	users     *users.Repository
	builder   sessionBuilder
	stripe    StripeSubscriptionClient
	lifecycle *Lifecycle
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("checkout builder required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("subscription lifecycle required")
	}
	return &service{
		users:     params.Users,
		builder:   params.Builder,
		stripe:    params.Stripe,
		lifecycle: params.Lifecycle,
	}, nil
}

// Start opens a subscription checkout unless the caller is already subscribed.
func (s *service) Start(ctx context.Context, userID uuid.UUID) (checkout.Session, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return checkout.Session{}, err
	}
	if user.SubscriptionStatus == enums.SubscriptionStatusActive {
		return checkout.Session{}, pkgerrors.New(pkgerrors.CodeConflict, "subscription already active")
	}
	return s.builder.BuildSubscription(ctx, userID)
}

// Cancel ends the caller's subscription at Stripe, then locally. A
// subscription Stripe no longer knows about is cancelled locally all the same.
func (s *service) Cancel(ctx context.Context, userID uuid.UUID) (*StatusDTO, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusActive || user.SubscriptionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}

	if _, err := s.stripe.Cancel(ctx, *user.SubscriptionID); err != nil && !IsMissingResource(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel stripe subscription")
	}
	if err := s.lifecycle.CancelUser(ctx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation")
	}
	return s.Status(ctx, userID)
}

func (s *service) Status(ctx context.Context, userID uuid.UUID) (*StatusDTO, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StatusDTO{
		Role:               user.Role,
		SubscriptionStatus: user.SubscriptionStatus,
		SubscriptionID:     user.SubscriptionID,
	}, nil
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

// IsMissingResource reports a Stripe 404 or resource_missing error.
func IsMissingResource(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
