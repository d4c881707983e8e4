package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/api/middleware"
	"github.com/beatvault/beatvault-backend/api/responses"
	"github.com/beatvault/beatvault-backend/api/validators"
	"github.com/beatvault/beatvault-backend/internal/catalog"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/pagination"
)

const maxSearchLen = 100

func CompositionList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		filter, page, err := parseCompositionQuery(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.ListCompositions(ctx, filter, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseCompositionQuery(r *http.Request) (catalog.ListFilter, pagination.Params, error) {
	q := r.URL.Query()
	filter := catalog.ListFilter{
		Genre:  enums.Genre(strings.TrimSpace(q.Get("genre"))),
		Key:    enums.MusicalKey(strings.TrimSpace(q.Get("key"))),
		Search: validators.SanitizeString(q.Get("search"), maxSearchLen),
	}
	var err error
	if filter.MinBPM, err = validators.ParseQueryInt(r, "minBpm", 0, 0, 999); err != nil {
		return filter, pagination.Params{}, err
	}
	if filter.MaxBPM, err = validators.ParseQueryInt(r, "maxBpm", 0, 0, 999); err != nil {
		return filter, pagination.Params{}, err
	}
	if raw := q.Get("artist"); raw != "" {
		artistID, err := validators.ParseUUID(raw, "artist")
		if err != nil {
			return filter, pagination.Params{}, err
		}
		filter.ArtistID = &artistID
	}
	pageNum, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
	if err != nil {
		return filter, pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, pagination.Params{}, err
	}
	return filter, pagination.Params{Page: pageNum, Limit: limit}, nil
}

func CompositionDetail(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dto, err := svc.GetComposition(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CompositionCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body catalog.CompositionInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dto, err := svc.CreateComposition(ctx, caller, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func CompositionUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body catalog.CompositionInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		dto, err := svc.UpdateComposition(ctx, caller, id, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CompositionDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		caller, err := middleware.CallerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.DeleteComposition(ctx, caller, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CompositionListen records a play. Repeats inside the dedup window are
// accepted but not counted.
func CompositionListen(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "compositionId"), "compositionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		recorded, err := svc.RecordListen(ctx, id, listenerKey(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]bool{"recorded": recorded})
	}
}

func listenerKey(r *http.Request) string {
	if caller, err := middleware.CallerID(r.Context()); err == nil && caller != uuid.Nil {
		return "user:" + caller.String()
	}
	return "ip:" + middleware.ClientIP(r)
}

func LicenseList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		licenses, err := svc.ListLicenses(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses)
	}
}

func LicenseDetail(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		license, err := svc.GetLicense(ctx, chi.URLParam(r, "licenseId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, license)
	}
}
