package purposeshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/purposes"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Service interface {
	List(ctx context.Context, filter purposes.Filter) ([]purposes.Purpose, error)
	Get(ctx context.Context, id string) (purposes.Purpose, error)
	Create(ctx context.Context, in purposes.Input) (purposes.Purpose, error)
	Update(ctx context.Context, id string, in purposes.Input) (purposes.Purpose, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	Service Service
	Audit   shared.Auditor
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, auditor shared.Auditor, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Audit: auditor, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermPurposesRead, h.Perms)
	write := middleware.RequirePermission(auth.PermPurposesWrite, h.Perms)
	r.With(read).Get("/purposes", h.handleList)
	r.With(write).Post("/purposes", h.handleCreate)
	r.With(read).Get("/purposes/{id}", h.handleGet)
	r.With(write).Put("/purposes/{id}", h.handleUpdate)
	r.With(write).Delete("/purposes/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := purposes.Filter{Category: shared.QueryTrim(r, "category")}
	if raw := shared.QueryTrim(r, "active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "active", Reason: "must be true or false"}})
			return
		}
		filter.ActiveOnly = active
	}
	items, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []purposes.Purpose{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, p, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in purposes.Input
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	p, err := h.Service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionCreate, audit.EntityPurpose, p.ID, p)
	api.Created(w, p, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in purposes.Input
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	p, err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionUpdate, audit.EntityPurpose, p.ID, p)
	api.Success(w, p, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionDelete, audit.EntityPurpose, id, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	if shared.RejectValidation(w, reqID, err) {
		return
	}
	switch {
	case errors.Is(err, purposes.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "purpose_not_found", "purpose not found", reqID)
	case errors.Is(err, purposes.ErrExists):
		api.Fail(w, http.StatusConflict, "purpose_exists", "a purpose with this id already exists", reqID)
	case errors.Is(err, purposes.ErrInUse):
		api.Fail(w, http.StatusConflict, "purpose_in_use", "purpose is offered by a template", reqID)
	default:
		slog.Warn("purpose request failed", "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, "purpose_error", "purpose request failed", reqID)
	}
}
