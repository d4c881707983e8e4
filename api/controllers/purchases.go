package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/beatvault/beatvault-backend/api/middleware"
	"github.com/beatvault/beatvault-backend/api/responses"
	"github.com/beatvault/beatvault-backend/api/validators"
	"github.com/beatvault/beatvault-backend/internal/purchases"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

func PurchaseList(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
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
		list, err := svc.List(ctx, caller)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func PurchaseDetail(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
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
		purchaseID, err := validators.ParseUUID(chi.URLParam(r, "purchaseId"), "purchaseId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		purchase, err := svc.Get(ctx, caller, purchaseID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}

// CompositionDownload releases the file reference to the owner or a buyer.
func CompositionDownload(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
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
		compositionID, err := validators.ParseUUID(chi.URLParam(r, "compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dl, err := svc.Download(ctx, caller, compositionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dl)
	}
}
