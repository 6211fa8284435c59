package vendors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"dpdp/internal/domain/notifications"
)

type SweepStore interface {
	ExpireOverdue(ctx context.Context, now time.Time) ([]Vendor, error)
	DueForWarning(ctx context.Context, now time.Time, window time.Duration) ([]Vendor, error)
	MarkExpiryNotified(ctx context.Context, id string, at time.Time) error
}

type SweepResult struct {
	Expired []string `json:"expired"`
	Warned  []string `json:"warned"`
}

// Sweeper expires lapsed agreements and warns once about those close to
// lapsing.
type Sweeper struct {
	Store    SweepStore
	Notifier Notifier
	Warning  time.Duration
	Now      func() time.Time
}

func (s Sweeper) Run(ctx context.Context) (SweepResult, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	result := SweepResult{Expired: []string{}, Warned: []string{}}

	expired, err := s.Store.ExpireOverdue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("expire overdue dpas: %w", err)
	}
	for _, v := range expired {
		result.Expired = append(result.Expired, v.VendorID)
		s.notify(ctx, notifications.EventDPAExpired, v, now)
	}

	if s.Warning <= 0 {
		return result, nil
	}
	due, err := s.Store.DueForWarning(ctx, now, s.Warning)
	if err != nil {
		return result, fmt.Errorf("find expiring dpas: %w", err)
	}
	for _, v := range due {
		s.notify(ctx, notifications.EventDPAExpiring, v, now)
		if err := s.Store.MarkExpiryNotified(ctx, v.VendorID, now); err != nil {
			slog.Warn("dpa expiry mark failed", "vendorId", v.VendorID, "err", err)
			continue
		}
		result.Warned = append(result.Warned, v.VendorID)
	}
	slog.Info("dpa sweep finished", "expired", len(result.Expired), "warned", len(result.Warned))
	return result, nil
}

func (s Sweeper) notify(ctx context.Context, event notifications.EventType, v Vendor, now time.Time) {
	if s.Notifier == nil {
		return
	}
	data := map[string]any{"vendor_name": v.VendorName}
	if v.DPAValidTill != nil {
		data["dpa_valid_till"] = v.DPAValidTill.Format("2006-01-02")
		data["days_remaining"] = int(math.Ceil(v.DPAValidTill.Sub(now).Hours() / 24))
	}
	s.Notifier.Notify(ctx, event, data)
}
