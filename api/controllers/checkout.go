package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/api/middleware"
	"github.com/beatvault/beatvault-backend/api/responses"
	"github.com/beatvault/beatvault-backend/api/validators"
	"github.com/beatvault/beatvault-backend/internal/checkout"
	"github.com/beatvault/beatvault-backend/internal/purchases"
	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

// CheckoutBuilder creates Stripe Checkout sessions for the caller.
type CheckoutBuilder interface {
	Build(ctx context.Context, userID uuid.UUID, items []pkgcheckout.Item) (checkout.Session, error)
	BuildFromCart(ctx context.Context, userID uuid.UUID) (checkout.Session, error)
}

type checkoutRequest struct {
	// UserID is optional and must match the caller when present.
	UserID string             `json:"userId" validate:"omitempty,uuid"`
	Items  []pkgcheckout.Item `json:"items"`
}

// Checkout builds a payment session from explicit items. Item prices are
// re-resolved server side.
func Checkout(builder CheckoutBuilder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if builder == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if body.UserID != "" && body.UserID != caller.String() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "userId does not match the authenticated user"))
			return
		}
		sess, err := builder.Build(ctx, caller, body.Items)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

func CheckoutCart(builder CheckoutBuilder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if builder == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sess, err := builder.BuildFromCart(ctx, caller)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess)
	}
}

// CheckoutVerify reports whether a session was paid and whether the webhook
// has recorded the purchase yet.
func CheckoutVerify(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sessionID, err := validators.RequiredQuery(r, "session_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := svc.VerifyPayment(ctx, caller, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
