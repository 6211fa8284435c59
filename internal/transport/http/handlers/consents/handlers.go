package consentshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/consent"
	"dpdp/internal/domain/notifications"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

type Service interface {
	Get(ctx context.Context, id string) (consent.Record, error)
	List(ctx context.Context, filter consent.Filter, limit, offset int) ([]consent.Record, int, error)
	Withdraw(ctx context.Context, id string) (consent.Record, error)
	ReceiptPDF(ctx context.Context, id string) ([]byte, consent.Record, error)
}

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
	read := middleware.RequirePermission(auth.PermConsentsRead, h.Perms)
	r.With(read).Get("/consents", h.handleList)
	r.With(read).Get("/consents/{id}", h.handleGet)
	r.With(read).Get("/consents/{id}/receipt", h.handleReceipt)
	r.With(middleware.RequirePermission(auth.PermConsentsManage, h.Perms)).Post("/consents/{id}/withdraw", h.handleWithdraw)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 500)
	filter := consent.Filter{
		TemplateID:      shared.QueryTrim(r, "templateId"),
		UserReferenceID: shared.QueryTrim(r, "userReferenceId"),
		Status:          shared.QueryTrim(r, "status"),
	}
	switch filter.Status {
	case "", consent.StatusAccepted, consent.StatusRejected, consent.StatusUpdated, consent.StatusPartial, consent.StatusWithdrawn:
	default:
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "status", Reason: "unknown consent status"}})
		return
	}
	items, total, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []consent.Record{}
	}
	api.SuccessWithMeta(w, items, page.Meta(total), reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	pdf, rec, err := h.Service.ReceiptPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="consent-receipt-`+rec.ID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Withdraw(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, _ := middleware.GetUser(r.Context())
	shared.RecordAudit(r, h.Audit, audit.ActionWithdraw, audit.EntityConsent, rec.ID, map[string]any{
		"templateId":      rec.TemplateID,
		"userReferenceId": rec.UserReferenceID,
	})
	if h.Notifier != nil {
		h.Notifier.Notify(r.Context(), notifications.EventConsentWithdrawn, map[string]any{
			"consent_id":        rec.ID,
			"template_id":       rec.TemplateID,
			"user_reference_id": rec.UserReferenceID,
			"actor":             user.UserID,
		})
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, consent.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "consent_not_found", "consent record not found", reqID)
	case errors.Is(err, consent.ErrAlreadyWithdrawn):
		api.Fail(w, http.StatusConflict, "consent_withdrawn", "consent already withdrawn", reqID)
	default:
		slog.Warn("consent request failed", "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, "consent_error", "consent request failed", reqID)
	}
}
