package templateshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/notifications"
	"dpdp/internal/domain/templates"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Service interface {
	Create(ctx context.Context, in templates.Input) (templates.Template, error)
	Get(ctx context.Context, id string) (templates.Template, error)
	List(ctx context.Context, filter templates.Filter, limit, offset int) ([]templates.Template, int, error)
	Update(ctx context.Context, id string, in templates.Input) (templates.Template, error)
	Delete(ctx context.Context, id string) error
}

// Notifier is satisfied by *notifications.Service.
type Notifier interface {
	Notify(ctx context.Context, event notifications.EventType, data map[string]any)
}

type Handler struct {
	Service  Service
	Audit    shared.Auditor
	Notifier Notifier
	Perms    middleware.PermissionStore
}

func NewHandler(service Service, auditor shared.Auditor, notifier Notifier, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Audit: auditor, Notifier: notifier, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermTemplatesRead, h.Perms)
	write := middleware.RequirePermission(auth.PermTemplatesWrite, h.Perms)
	r.Route("/templates", func(r chi.Router) {
		r.With(read).Get("/", h.handleList)
		r.With(write).Post("/", h.handleCreate)
		r.With(read).Get("/{id}", h.handleGet)
		r.With(write).Put("/{id}", h.handleUpdate)
		r.With(write).Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	filter := templates.Filter{
		Status:         shared.QueryTrim(r, "status"),
		OrganizationID: shared.QueryTrim(r, "organizationId"),
	}
	items, total, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Warn("template list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "template_list_failed", "failed to list templates", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []templates.Template{}
	}
	api.SuccessWithMeta(w, items, page.Meta(total), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var in templates.Input
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	if in.CreatedBy == "" {
		if user, ok := middleware.GetUser(r.Context()); ok {
			in.CreatedBy = user.UserID
		}
	}
	created, err := h.Service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionCreate, audit.EntityTemplate, created.ID, map[string]any{"name": created.Name, "status": created.Status})
	if h.Notifier != nil {
		h.Notifier.Notify(r.Context(), notifications.EventTemplateCreated, map[string]any{
			"template_id":   created.ID,
			"template_name": created.Name,
			"status":        created.Status,
			"created_by":    created.CreatedBy,
		})
	}
	api.Created(w, created, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, t, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var in templates.Input
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	id := chi.URLParam(r, "id")
	updated, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionUpdate, audit.EntityTemplate, id, map[string]any{"name": updated.Name, "status": updated.Status})
	api.Success(w, updated, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionDelete, audit.EntityTemplate, id, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	if shared.RejectValidation(w, reqID, err) {
		return
	}
	switch {
	case errors.Is(err, templates.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "template_not_found", "template not found", reqID)
	case errors.Is(err, templates.ErrHasRecords):
		api.Fail(w, http.StatusConflict, "template_in_use", "template has consent records and cannot be deleted", reqID)
	default:
		slog.Warn("template request failed", "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, "template_error", "template request failed", reqID)
	}
}
