package consent

import (
	"errors"
	"strings"
	"time"

	"dpdp/internal/platform/validate"
	"dpdp/internal/widget"
)

const (
	StatusAccepted  = widget.StatusAccepted
	StatusRejected  = widget.StatusRejected
	StatusUpdated   = widget.StatusUpdated
	StatusPartial   = widget.StatusPartial
	StatusWithdrawn = "withdrawn"
)

var (
	ErrNotFound         = errors.New("consent record not found")
	ErrMissingFields    = errors.New("templateId, userReferenceId, and status are required")
	ErrAlreadyWithdrawn = errors.New("consent already withdrawn")
	ErrFilterRequired   = errors.New("templateId or userReferenceId filter is required")
)

type Record struct {
	ID               string     `json:"id"`
	TemplateID       string     `json:"templateId"`
	UserReferenceID  string     `json:"userReferenceId"`
	Status           string     `json:"status"`
	AcceptedPurposes []string   `json:"acceptedPurposes"`
	Platform         string     `json:"platform"`
	Language         string     `json:"language"`
	UserAgent        string     `json:"userAgent"`
	Browser          string     `json:"browser"`
	OS               string     `json:"os"`
	IPAddress        string     `json:"ipAddress,omitempty"`
	ConsentTimestamp time.Time  `json:"consentTimestamp"`
	ExpiryDate       *time.Time `json:"expiryDate"`
	Version          int        `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Receipt is the acknowledgement returned to the widget.
func (r Record) Receipt() widget.Receipt {
	purposes := r.AcceptedPurposes
	if purposes == nil {
		purposes = []string{}
	}
	return widget.Receipt{
		ID:              r.ID,
		TemplateID:      r.TemplateID,
		UserReferenceID: r.UserReferenceID,
		Status:          r.Status,
		Purposes:        purposes,
		Timestamp:       r.ConsentTimestamp.UnixMilli(),
		Platform:        r.Platform,
		Language:        r.Language,
	}
}

// ClientMeta is captured from the submitting request for the audit trail.
type ClientMeta struct {
	IP        string
	UserAgent string
}

type Filter struct {
	TemplateID      string
	UserReferenceID string
	Status          string
}

// normalizeSubmission trims and defaults a widget submission and reports
// every problem with it.
func normalizeSubmission(sub widget.Submission, now time.Time) (widget.Submission, error) {
	sub.TemplateID = strings.TrimSpace(sub.TemplateID)
	sub.UserReferenceID = strings.TrimSpace(sub.UserReferenceID)
	sub.Status = strings.TrimSpace(sub.Status)
	if sub.TemplateID == "" || sub.UserReferenceID == "" || sub.Status == "" {
		return sub, ErrMissingFields
	}
	sub.Platform = strings.TrimSpace(sub.Platform)
	if sub.Platform == "" {
		sub.Platform = widget.DefaultPlatform
	}
	sub.Language = strings.TrimSpace(sub.Language)
	if sub.Language == "" {
		sub.Language = widget.DefaultLanguage
	}
	if sub.Purposes == nil {
		sub.Purposes = []string{}
	}

	var c validate.Collector
	c.MaxLen("userReferenceId", sub.UserReferenceID, 255)
	c.OneOf("status", sub.Status, StatusAccepted, StatusRejected, StatusPartial, StatusUpdated)
	c.MaxLen("platform", sub.Platform, 50)
	c.Language("language", sub.Language)
	if sub.Timestamp < 0 {
		c.Add("timestamp", "must be a positive number")
	}
	if err := c.Err(); err != nil {
		return sub, err
	}
	if sub.Timestamp == 0 {
		sub.Timestamp = now.UnixMilli()
	}
	return sub, nil
}

// reconcilePurposes keeps the accepted purposes the template still offers
// and adds any required purpose the client left out. Ids the template no
// longer offers are returned separately; a banner rendered from a stale or
// fallback snapshot can send them.
func reconcilePurposes(accepted []string, offered []widget.Purpose) (kept, dropped []string) {
	known := make(map[string]bool, len(offered))
	for _, p := range offered {
		known[p.ID] = true
	}
	seen := map[string]bool{}
	kept = make([]string, 0, len(accepted))
	for _, id := range accepted {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !known[id] {
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
	}
	for _, p := range offered {
		if p.Required && !seen[p.ID] {
			kept = append(kept, p.ID)
			seen[p.ID] = true
		}
	}
	return kept, dropped
}
