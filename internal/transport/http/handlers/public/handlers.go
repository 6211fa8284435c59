package publichandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/consent"
	"dpdp/internal/domain/templates"
	"dpdp/internal/platform/validate"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
	"dpdp/internal/widget"
)

// ConsentPath is the submission endpoint the loader posts to.
const ConsentPath = widget.SubmitPath

type SnapshotSource interface {
	PublicSnapshot(ctx context.Context, id, language, platform string) (widget.Snapshot, error)
}

type ConsentStore interface {
	Submit(ctx context.Context, sub widget.Submission, meta consent.ClientMeta) (consent.Record, bool, error)
	ListForReference(ctx context.Context, filter consent.Filter, limit, offset int) ([]consent.Record, int, error)
}

// Handler serves the unauthenticated widget API. Responses use the widget's
// own envelope, not the admin one.
type Handler struct {
	Templates SnapshotSource
	Consents  ConsentStore
}

func NewHandler(templates SnapshotSource, consents ConsentStore) *Handler {
	return &Handler{Templates: templates, Consents: consents}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/public/templates/{id}", h.handleTemplate)
	r.Post(ConsentPath, h.handleSubmit)
	r.Get(ConsentPath, h.handleList)
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	language := shared.QueryTrim(r, "language")
	platform := shared.QueryTrim(r, "platform")

	snap, err := h.Templates.PublicSnapshot(r.Context(), id, language, platform)
	switch {
	case errors.Is(err, templates.ErrNotFound):
		api.PublicFail(w, http.StatusNotFound, "Template not found", "Template with ID "+id+" does not exist")
		return
	case errors.Is(err, templates.ErrNotActive):
		api.PublicFail(w, http.StatusNotFound, "Template not available", "Template is not active")
		return
	case err != nil:
		slog.Warn("public template fetch failed", "templateId", id, "err", err)
		api.PublicFail(w, http.StatusInternalServerError, "Internal server error", "Failed to fetch template")
		return
	}
	api.PublicSuccess(w, snap)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub widget.Submission
	if err := shared.DecodeJSONLenient(r, &sub); err != nil {
		if errors.Is(err, shared.ErrBodyTooLarge) {
			api.PublicFail(w, http.StatusRequestEntityTooLarge, "Payload too large", err.Error())
			return
		}
		api.PublicFail(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	meta := consent.ClientMeta{IP: middleware.ClientIP(r), UserAgent: r.UserAgent()}
	rec, _, err := h.Consents.Submit(r.Context(), sub, meta)
	if err != nil {
		h.failSubmit(w, sub, err)
		return
	}
	api.PublicSuccessMessage(w, rec.Receipt(), "Consent saved successfully")
}

func (h *Handler) failSubmit(w http.ResponseWriter, sub widget.Submission, err error) {
	var verr *validate.Error
	switch {
	case errors.Is(err, consent.ErrMissingFields):
		api.PublicFail(w, http.StatusBadRequest, "Missing required fields", err.Error())
	case errors.As(err, &verr):
		api.PublicFailWithDetails(w, http.StatusBadRequest, "Invalid consent payload", verr.Issues)
	case errors.Is(err, templates.ErrNotFound):
		api.PublicFail(w, http.StatusNotFound, "Template not found", "Template "+strings.TrimSpace(sub.TemplateID)+" does not exist")
	case errors.Is(err, templates.ErrNotActive):
		api.PublicFail(w, http.StatusBadRequest, "Template not active", "Cannot collect consent for inactive template")
	default:
		slog.Warn("consent submit failed", "templateId", sub.TemplateID, "err", err)
		api.PublicFail(w, http.StatusInternalServerError, "Internal server error", "Failed to save consent record")
	}
}

type publicRecord struct {
	ID               string   `json:"id"`
	TemplateID       string   `json:"templateId"`
	UserReferenceID  string   `json:"userReferenceId"`
	Status           string   `json:"status"`
	AcceptedPurposes []string `json:"acceptedPurposes"`
	Platform         string   `json:"platform"`
	Language         string   `json:"language"`
	ConsentTimestamp int64    `json:"consentTimestamp"`
	ExpiryDate       *int64   `json:"expiryDate"`
	Version          int      `json:"version"`
}

// toPublic drops client metadata: the lookup is unauthenticated.
func toPublic(rec consent.Record) publicRecord {
	out := publicRecord{
		ID:               rec.ID,
		TemplateID:       rec.TemplateID,
		UserReferenceID:  rec.UserReferenceID,
		Status:           rec.Status,
		AcceptedPurposes: rec.AcceptedPurposes,
		Platform:         rec.Platform,
		Language:         rec.Language,
		ConsentTimestamp: rec.ConsentTimestamp.UnixMilli(),
		Version:          rec.Version,
	}
	if out.AcceptedPurposes == nil {
		out.AcceptedPurposes = []string{}
	}
	if rec.ExpiryDate != nil {
		ms := rec.ExpiryDate.UnixMilli()
		out.ExpiryDate = &ms
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := consent.Filter{
		TemplateID:      shared.QueryTrim(r, "templateId"),
		UserReferenceID: shared.QueryTrim(r, "userReferenceId"),
	}
	page := shared.ParsePagination(r, 50, 100)

	records, _, err := h.Consents.ListForReference(r.Context(), filter, page.Limit, page.Offset)
	switch {
	case errors.Is(err, consent.ErrFilterRequired):
		api.PublicFail(w, http.StatusBadRequest, "Filter required", "Please provide templateId or userReferenceId parameter")
		return
	case err != nil:
		slog.Warn("consent lookup failed", "err", err)
		api.PublicFail(w, http.StatusInternalServerError, "Internal server error", "Failed to retrieve consent records")
		return
	}

	out := make([]publicRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toPublic(rec))
	}
	api.PublicList(w, out, len(out))
}
