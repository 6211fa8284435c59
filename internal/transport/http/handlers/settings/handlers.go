package settingshandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/settings"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Store interface {
	Get(ctx context.Context) (settings.Settings, error)
	Put(ctx context.Context, in settings.Settings) (settings.Settings, error)
}

type Handler struct {
	Store Store
	Audit shared.Auditor
	Perms middleware.PermissionStore
}

func NewHandler(store Store, auditor shared.Auditor, perms middleware.PermissionStore) *Handler {
	return &Handler{Store: store, Audit: auditor, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermSettingsRead, h.Perms)).Get("/settings", h.handleGet)
	r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Put("/settings", h.handlePut)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	current, err := h.Store.Get(r.Context())
	if err != nil {
		slog.Warn("settings load failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "settings_error", "failed to load settings", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, current, middleware.GetRequestID(r.Context()))
}

// handlePut starts from the stored row so a partial body only changes the
// fields it names.
func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	current, err := h.Store.Get(r.Context())
	if err != nil {
		slog.Warn("settings load failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "settings_error", "failed to load settings", reqID)
		return
	}
	next := current
	next.UpdatedAt = nil
	if err := shared.DecodeJSON(r, &next); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	saved, err := h.Store.Put(r.Context(), next)
	if err != nil {
		if shared.RejectValidation(w, reqID, err) {
			return
		}
		slog.Warn("settings save failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "settings_error", "failed to save settings", reqID)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionUpdate, audit.EntitySettings, "app", map[string]any{"before": current, "after": saved})
	api.Success(w, saved, reqID)
}
