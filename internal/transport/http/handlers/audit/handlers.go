package audithandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Lister interface {
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Entry, int, error)
}

type Handler struct {
	Service Lister
	Perms   middleware.PermissionStore
}

func NewHandler(service Lister, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/audit", h.handleList)
}

func filterFrom(r *http.Request) audit.Filter {
	return audit.Filter{
		EntityType: shared.QueryTrim(r, "entityType"),
		EntityID:   shared.QueryTrim(r, "entityId"),
		Action:     shared.QueryTrim(r, "action"),
		UserID:     shared.QueryTrim(r, "userId"),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 100, 500)
	entries, total, err := h.Service.List(r.Context(), filterFrom(r), page.Limit, page.Offset)
	if err != nil {
		slog.Warn("audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit entries", middleware.GetRequestID(r.Context()))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.SuccessWithMeta(w, entries, page.Meta(total), middleware.GetRequestID(r.Context()))
}
