package analyticshandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/analytics"
	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Service interface {
	Consent(ctx context.Context, f analytics.Filter, days int) (analytics.Report, error)
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAnalyticsRead, h.Perms)).Get("/analytics/consent", h.handleConsent)
}

func (h *Handler) handleConsent(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var issues []shared.ValidationIssue

	days := analytics.DefaultDays
	if raw := shared.QueryTrim(r, "days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > analytics.MaxDays {
			issues = append(issues, shared.ValidationIssue{Field: "days", Reason: "must be between 1 and 365"})
		} else {
			days = v
		}
	}
	start, err := shared.ParseOptionalDate("start", shared.QueryTrim(r, "start"), false)
	if err != nil {
		issues = append(issues, shared.ValidationIssue{Field: "start", Reason: err.Error()})
	}
	end, err := shared.ParseOptionalDate("end", shared.QueryTrim(r, "end"), true)
	if err != nil {
		issues = append(issues, shared.ValidationIssue{Field: "end", Reason: err.Error()})
	}
	if start != nil && end != nil && end.Before(*start) {
		issues = append(issues, shared.ValidationIssue{Field: "end", Reason: "must not be before start"})
	}
	if len(issues) > 0 {
		shared.FailValidation(w, reqID, issues)
		return
	}

	report, err := h.Service.Consent(r.Context(), analytics.Filter{
		TemplateID: shared.QueryTrim(r, "templateId"),
		Start:      start,
		End:        end,
		Status:     shared.QueryTrim(r, "status"),
	}, days)
	if err != nil {
		slog.Warn("consent analytics failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "analytics_failed", "failed to compute consent analytics", reqID)
		return
	}
	api.Success(w, report, reqID)
}
