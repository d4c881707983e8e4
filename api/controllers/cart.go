package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/api/middleware"
	"github.com/beatvault/beatvault-backend/api/responses"
	"github.com/beatvault/beatvault-backend/api/validators"
	"github.com/beatvault/beatvault-backend/internal/cart"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

type cartEntryRequest struct {
	CompositionID uuid.UUID `json:"compositionId" validate:"required"`
	LicenseID     string    `json:"licenseId" validate:"required"`
}

type cartReplaceRequest struct {
	Items []cart.Selection `json:"items" validate:"dive"`
}

type cartResponse struct {
	Items []cart.Entry `json:"items"`
}

func CartFetch(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entries, err := svc.List(ctx, caller)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Items: nonNilEntries(entries)})
	}
}

// CartAdd adds one composition with a license. Adding a composition that is
// already in the cart returns Conflict.
func CartAdd(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body cartEntryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entry, err := svc.Add(ctx, caller, body.CompositionID, body.LicenseID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

func CartReplace(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body cartReplaceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entries, err := svc.Replace(ctx, caller, body.Items)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse{Items: nonNilEntries(entries)})
	}
}

func CartSetLicense(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body cartEntryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entry, err := svc.SetLicense(ctx, caller, body.CompositionID, body.LicenseID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

func CartRemove(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		compositionID, err := validators.ParseUUID(r.URL.Query().Get("compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Remove(ctx, caller, compositionID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nonNilEntries(entries []cart.Entry) []cart.Entry {
	if entries == nil {
		return []cart.Entry{}
	}
	return entries
}
