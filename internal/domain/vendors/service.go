package vendors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"dpdp/internal/domain/notifications"
	"dpdp/internal/platform/ids"
	"dpdp/internal/platform/validate"
)

type Repository interface {
	Create(ctx context.Context, v Vendor) (Vendor, error)
	Get(ctx context.Context, id string) (Vendor, error)
	List(ctx context.Context, filter Filter) ([]Vendor, error)
	Save(ctx context.Context, v Vendor) (Vendor, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	LogAccess(ctx context.Context, entry AccessLog) error
	AccessLogs(ctx context.Context, vendorID string, limit, offset int) ([]AccessLog, error)
}

type Files interface {
	Save(name string, data []byte) (string, error)
	Load(path string) ([]byte, error)
	Remove(path string) error
}

type Notifier interface {
	Notify(ctx context.Context, event notifications.EventType, data map[string]any)
}

type AccessRecorder interface {
	AccessChecked(granted bool)
}

type Service struct {
	repo     Repository
	files    Files
	notifier Notifier
	recorder AccessRecorder
	now      func() time.Time
}

func NewService(repo Repository, files Files, notifier Notifier, recorder AccessRecorder) *Service {
	return &Service{repo: repo, files: files, notifier: notifier, recorder: recorder, now: time.Now}
}

func (s *Service) notify(ctx context.Context, event notifications.EventType, data map[string]any) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event, data)
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Vendor, error) {
	v := Vendor{
		VendorID:         ids.New(ids.PrefixVendor),
		VendorName:       strings.TrimSpace(in.VendorName),
		Category:         strings.TrimSpace(in.Category),
		ContactName:      strings.TrimSpace(in.ContactName),
		ContactEmail:     strings.TrimSpace(in.ContactEmail),
		Notes:            in.Notes,
		DPAStatus:        DPAPending,
		AllowedPurposes:  dedupe(in.AllowedPurposes),
		AllowedDataTypes: dedupe(in.AllowedDataTypes),
		IsActive:         true,
	}
	if err := validateVendor(v); err != nil {
		return Vendor{}, err
	}
	v.RiskLevel = Risk(v)
	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return Vendor{}, err
	}
	s.notify(ctx, notifications.EventVendorCreated, map[string]any{
		"vendor_name":   created.VendorName,
		"category":      created.Category,
		"contact_name":  created.ContactName,
		"contact_email": created.ContactEmail,
	})
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Vendor, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Vendor, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Vendor, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	next := in.apply(current)
	if err := validateVendor(next); err != nil {
		return Vendor{}, err
	}
	next.RiskLevel = Risk(next)
	return s.repo.Save(ctx, next)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if current.DPAFilePath != "" && s.files != nil {
		if err := s.files.Remove(current.DPAFilePath); err != nil {
			slog.Warn("dpa file cleanup failed", "vendorId", id, "err", err)
		}
	}
	return nil
}

// Approve marks the DPA approved. Signing defaults to now and validity to
// one year after signing.
func (s *Service) Approve(ctx context.Context, id string, in ApproveInput) (Vendor, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	signed := s.now().UTC()
	if in.SignedOn != nil {
		signed = in.SignedOn.UTC()
	}
	validTill := signed.AddDate(1, 0, 0)
	if in.ValidTill != nil {
		validTill = in.ValidTill.UTC()
	}
	if !validTill.After(signed) {
		var c validate.Collector
		c.Add("dpa_valid_till", "must be after dpa_signed_on")
		return Vendor{}, c.Err()
	}
	saved, err := s.repo.Save(ctx, approved(current, signed, validTill))
	if err != nil {
		return Vendor{}, err
	}
	s.notify(ctx, notifications.EventVendorApproved, map[string]any{
		"vendor_name":    saved.VendorName,
		"dpa_signed_on":  signed.Format("2006-01-02"),
		"dpa_valid_till": validTill.Format("2006-01-02"),
		"risk_level":     saved.RiskLevel,
	})
	return saved, nil
}

func approved(v Vendor, signed, validTill time.Time) Vendor {
	v.DPAStatus = DPAApproved
	v.DPASignedOn = &signed
	v.DPAValidTill = &validTill
	v.ExpiryNotifiedAt = nil
	v.RiskLevel = Risk(v)
	return v
}

func (s *Service) Reject(ctx context.Context, id, reason, actor string) (Vendor, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	current.DPAStatus = DPARejected
	current.RiskLevel = Risk(current)
	saved, err := s.repo.Save(ctx, current)
	if err != nil {
		return Vendor{}, err
	}
	if reason == "" {
		reason = "Not specified"
	}
	s.notify(ctx, notifications.EventVendorRejected, map[string]any{
		"vendor_name":      saved.VendorName,
		"rejection_reason": reason,
		"rejected_by":      actor,
	})
	return saved, nil
}

// Bulk applies one action to many vendors. Unknown ids are skipped; the
// returned slice holds only the vendors that changed.
func (s *Service) Bulk(ctx context.Context, action string, vendorIDs []string, actor string) ([]Vendor, error) {
	switch action {
	case ActionApprove, ActionReject, ActionActivate, ActionDeactivate:
	default:
		return nil, ErrInvalidAction
	}
	now := s.now().UTC()
	out := []Vendor{}
	failed := 0
	for _, id := range vendorIDs {
		v, err := s.repo.Get(ctx, id)
		if err != nil {
			failed++
			continue
		}
		switch action {
		case ActionApprove:
			v = approved(v, now, now.AddDate(1, 0, 0))
		case ActionReject:
			v.DPAStatus = DPARejected
			v.RiskLevel = Risk(v)
		case ActionActivate:
			v.IsActive = true
		case ActionDeactivate:
			v.IsActive = false
		}
		saved, err := s.repo.Save(ctx, v)
		if err != nil {
			slog.Warn("bulk vendor update failed", "vendorId", id, "action", action, "err", err)
			failed++
			continue
		}
		out = append(out, saved)
	}
	s.notify(ctx, notifications.EventBulkActionCompleted, map[string]any{
		"action":    action,
		"processed": len(out),
		"failed":    failed,
		"actor":     actor,
	})
	return out, nil
}

// UploadDPA stores a signed agreement. Anything over MaxDPASize or not
// starting with the PDF magic is refused.
func (s *Service) UploadDPA(ctx context.Context, id string, r io.Reader, actor string) (Vendor, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxDPASize+1))
	if err != nil {
		return Vendor{}, fmt.Errorf("read dpa upload: %w", err)
	}
	if len(data) > MaxDPASize {
		return Vendor{}, ErrFileTooLarge
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return Vendor{}, ErrNotPDF
	}

	path, err := s.files.Save(dpaFileName(current.VendorName, s.now()), data)
	if err != nil {
		return Vendor{}, fmt.Errorf("store dpa file: %w", err)
	}
	previous := current.DPAFilePath
	current.DPAFilePath = path
	saved, err := s.repo.Save(ctx, current)
	if err != nil {
		_ = s.files.Remove(path)
		return Vendor{}, err
	}
	if previous != "" && previous != path {
		if err := s.files.Remove(previous); err != nil {
			slog.Warn("old dpa file cleanup failed", "vendorId", id, "err", err)
		}
	}
	s.notify(ctx, notifications.EventDPAUploaded, map[string]any{
		"vendor_name": saved.VendorName,
		"uploaded_by": actor,
		"file_size":   fmt.Sprintf("%.1f KB", float64(len(data))/1024),
	})
	return saved, nil
}

// DPAFile returns the plaintext agreement and a download name.
func (s *Service) DPAFile(ctx context.Context, id string) ([]byte, string, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if v.DPAFilePath == "" {
		return nil, "", ErrNoDPAFile
	}
	data, err := s.files.Load(v.DPAFilePath)
	if err != nil {
		return nil, "", err
	}
	return data, dpaFileName(v.VendorName, v.UpdatedAt), nil
}

type AccessDecision struct {
	LogID         string   `json:"log_id"`
	VendorID      string   `json:"vendor_id"`
	Purpose       string   `json:"purpose"`
	DataTypes     []string `json:"data_types"`
	AccessGranted bool     `json:"access_granted"`
	Reason        string   `json:"reason"`
}

// CheckAccess evaluates and logs a vendor's request to process data.
func (s *Service) CheckAccess(ctx context.Context, req AccessRequest) (AccessDecision, error) {
	req.VendorID = strings.TrimSpace(req.VendorID)
	req.Purpose = strings.TrimSpace(req.Purpose)
	if req.VendorID == "" || req.Purpose == "" || len(req.DataTypes) == 0 {
		return AccessDecision{}, ErrMissingAccessFields
	}
	now := s.now().UTC()

	var granted bool
	var reason, vendorName string
	v, err := s.repo.Get(ctx, req.VendorID)
	switch {
	case errors.Is(err, ErrNotFound):
		reason = "Vendor not found"
	case err != nil:
		return AccessDecision{}, err
	default:
		vendorName = v.VendorName
		granted, reason = evaluateAccess(v, req, now)
	}

	entry := AccessLog{
		LogID:              ids.New(ids.PrefixAccessLog),
		VendorID:           req.VendorID,
		VendorName:         vendorName,
		Purpose:            req.Purpose,
		DataTypesRequested: req.DataTypes,
		AccessGranted:      granted,
		Reason:             reason,
		Timestamp:          now,
	}
	if err := s.repo.LogAccess(ctx, entry); err != nil {
		return AccessDecision{}, fmt.Errorf("log vendor access: %w", err)
	}
	if s.recorder != nil {
		s.recorder.AccessChecked(granted)
	}
	return AccessDecision{
		LogID:         entry.LogID,
		VendorID:      req.VendorID,
		Purpose:       req.Purpose,
		DataTypes:     req.DataTypes,
		AccessGranted: granted,
		Reason:        reason,
	}, nil
}

func (s *Service) AccessLogs(ctx context.Context, vendorID string, limit, offset int) ([]AccessLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.AccessLogs(ctx, vendorID, limit, offset)
}
