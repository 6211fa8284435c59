package vendorshandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/vendors"
	"dpdp/internal/platform/jobs"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

// dpaFormField is the multipart field carrying the agreement.
const dpaFormField = "dpa_file"

type Service interface {
	Create(ctx context.Context, in vendors.CreateInput) (vendors.Vendor, error)
	Get(ctx context.Context, id string) (vendors.Vendor, error)
	List(ctx context.Context, filter vendors.Filter) ([]vendors.Vendor, error)
	Stats(ctx context.Context) (vendors.Stats, error)
	Update(ctx context.Context, id string, in vendors.UpdateInput) (vendors.Vendor, error)
	Delete(ctx context.Context, id string) error
	Approve(ctx context.Context, id string, in vendors.ApproveInput) (vendors.Vendor, error)
	Reject(ctx context.Context, id, reason, actor string) (vendors.Vendor, error)
	Bulk(ctx context.Context, action string, vendorIDs []string, actor string) ([]vendors.Vendor, error)
	UploadDPA(ctx context.Context, id string, r io.Reader, actor string) (vendors.Vendor, error)
	DPAFile(ctx context.Context, id string) ([]byte, string, error)
	CheckAccess(ctx context.Context, req vendors.AccessRequest) (vendors.AccessDecision, error)
	AccessLogs(ctx context.Context, vendorID string, limit, offset int) ([]vendors.AccessLog, error)
}

// JobRunner is satisfied by *jobs.Service.
type JobRunner interface {
	RunNow(ctx context.Context, jobType string, run jobs.RunFunc) (any, error)
}

type Handler struct {
	Service Service
	Audit   shared.Auditor
	Perms   middleware.PermissionStore
	Jobs    JobRunner
	Sweep   jobs.RunFunc
}

func NewHandler(service Service, auditor shared.Auditor, perms middleware.PermissionStore, runner JobRunner, sweep jobs.RunFunc) *Handler {
	return &Handler{Service: service, Audit: auditor, Perms: perms, Jobs: runner, Sweep: sweep}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermVendorsRead, h.Perms)
	write := middleware.RequirePermission(auth.PermVendorsWrite, h.Perms)
	approve := middleware.RequirePermission(auth.PermVendorsApprove, h.Perms)

	r.Route("/vendors", func(r chi.Router) {
		r.With(read).Get("/", h.handleList)
		r.With(write).Post("/", h.handleCreate)
		r.With(read).Get("/stats", h.handleStats)
		r.With(read).Post("/access-check", h.handleAccessCheck)
		r.With(read).Get("/access-logs", h.handleAccessLogs)
		r.With(approve).Post("/bulk-actions", h.handleBulk)
		r.With(approve).Post("/dpa-sweep", h.handleSweep)

		r.With(read).Get("/{id}", h.handleGet)
		r.With(write).Put("/{id}", h.handleUpdate)
		r.With(write).Delete("/{id}", h.handleDelete)
		r.With(approve).Post("/{id}/approve", h.handleApprove)
		r.With(approve).Post("/{id}/reject", h.handleReject)
		r.With(write).Post("/{id}/dpa", h.handleUploadDPA)
		r.With(read).Get("/{id}/dpa", h.handleDownloadDPA)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := vendors.Filter{
		Category:  shared.QueryTrim(r, "category"),
		DPAStatus: strings.ToUpper(shared.QueryTrim(r, "dpa_status")),
		RiskLevel: strings.ToUpper(shared.QueryTrim(r, "risk_level")),
		Search:    shared.QueryTrim(r, "search"),
	}
	items, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []vendors.Vendor{}
	}
	api.SuccessWithMeta(w, items, map[string]int{"total": len(items)}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, stats, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in vendors.CreateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	v, err := h.Service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionCreate, audit.EntityVendor, v.VendorID, map[string]any{"vendor_name": v.VendorName, "category": v.Category})
	api.Created(w, v, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, v, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in vendors.UpdateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	v, err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionUpdate, audit.EntityVendor, v.VendorID, in)
	api.Success(w, v, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionDelete, audit.EntityVendor, id, nil)
	api.Success(w, map[string]string{"vendor_id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var in vendors.ApproveInput
	if r.ContentLength != 0 {
		if err := shared.DecodeJSONLenient(r, &in); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
			return
		}
	}
	v, err := h.Service.Approve(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionApprove, audit.EntityVendor, v.VendorID, map[string]any{
		"dpa_signed_on":  v.DPASignedOn,
		"dpa_valid_till": v.DPAValidTill,
	})
	api.Success(w, v, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := shared.DecodeJSONLenient(r, &in); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
			return
		}
	}
	user, _ := middleware.GetUser(r.Context())
	v, err := h.Service.Reject(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(in.Reason), user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, audit.ActionReject, audit.EntityVendor, v.VendorID, map[string]any{"reason": in.Reason})
	api.Success(w, v, middleware.GetRequestID(r.Context()))
}

type bulkRequest struct {
	Action    string   `json:"action"`
	VendorIDs []string `json:"vendor_ids"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var in bulkRequest
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	if len(in.VendorIDs) == 0 {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "vendor_ids", Reason: "at least one vendor id is required"}})
		return
	}
	user, _ := middleware.GetUser(r.Context())
	updated, err := h.Service.Bulk(r.Context(), in.Action, in.VendorIDs, user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, v := range updated {
		shared.RecordAudit(r, h.Audit, "bulk_"+in.Action, audit.EntityVendor, v.VendorID, nil)
	}
	api.Success(w, map[string]any{
		"action":    in.Action,
		"processed": len(updated),
		"failed":    len(in.VendorIDs) - len(updated),
		"vendors":   updated,
	}, reqID)
}

func (h *Handler) handleUploadDPA(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, vendors.MaxDPASize+1<<20)
	file, _, err := r.FormFile(dpaFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "file_too_large", vendors.ErrFileTooLarge.Error(), reqID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_upload", "multipart field "+dpaFormField+" is required", reqID)
		return
	}
	defer file.Close()

	user, _ := middleware.GetUser(r.Context())
	v, err := h.Service.UploadDPA(r.Context(), chi.URLParam(r, "id"), file, user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shared.RecordAudit(r, h.Audit, "dpa_upload", audit.EntityVendor, v.VendorID, nil)
	api.Success(w, v, reqID)
}

func (h *Handler) handleDownloadDPA(w http.ResponseWriter, r *http.Request) {
	data, name, err := h.Service.DPAFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	var in vendors.AccessRequest
	if err := shared.DecodeJSON(r, &in); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), middleware.GetRequestID(r.Context()))
		return
	}
	decision, err := h.Service.CheckAccess(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, decision, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 100, 500)
	logs, err := h.Service.AccessLogs(r.Context(), shared.QueryTrim(r, "vendor_id"), page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []vendors.AccessLog{}
	}
	api.Success(w, logs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if h.Sweep == nil {
		api.Fail(w, http.StatusServiceUnavailable, "sweep_unavailable", "dpa sweep is not configured", reqID)
		return
	}
	var (
		result any
		err    error
	)
	if h.Jobs != nil {
		result, err = h.Jobs.RunNow(r.Context(), jobs.JobDPASweep, h.Sweep)
	} else {
		result, err = h.Sweep(r.Context())
	}
	if err != nil {
		slog.Warn("dpa sweep failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "sweep_failed", "dpa sweep failed", reqID)
		return
	}
	api.Success(w, result, reqID)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	if shared.RejectValidation(w, reqID, err) {
		return
	}
	switch {
	case errors.Is(err, vendors.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "vendor_not_found", "vendor not found", reqID)
	case errors.Is(err, vendors.ErrNoDPAFile):
		api.Fail(w, http.StatusNotFound, "dpa_not_found", err.Error(), reqID)
	case errors.Is(err, vendors.ErrInvalidAction):
		api.Fail(w, http.StatusBadRequest, "invalid_action", "action must be approve, reject, activate or deactivate", reqID)
	case errors.Is(err, vendors.ErrMissingAccessFields), errors.Is(err, vendors.ErrNotPDF):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), reqID)
	case errors.Is(err, vendors.ErrFileTooLarge):
		api.Fail(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), reqID)
	default:
		slog.Warn("vendor request failed", "path", r.URL.Path, "err", err)
		api.Fail(w, http.StatusInternalServerError, "vendor_error", "vendor request failed", reqID)
	}
}
