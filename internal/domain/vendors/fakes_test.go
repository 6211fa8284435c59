package vendors

import (
	"context"
	"sort"
	"sync"

	"dpdp/internal/domain/notifications"
)

type memRepo struct {
	mu      sync.Mutex
	items   map[string]Vendor
	logs    []AccessLog
	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]Vendor{}}
}

func (m *memRepo) Create(_ context.Context, v Vendor) (Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[v.VendorID] = v
	return v, nil
}

func (m *memRepo) Get(_ context.Context, id string) (Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[id]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	return v, nil
}

func (m *memRepo) List(_ context.Context, filter Filter) ([]Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Vendor{}
	for _, v := range m.items {
		if filter.Category != "" && v.Category != filter.Category {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out, nil
}

func (m *memRepo) Save(_ context.Context, v Vendor) (Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return Vendor{}, m.saveErr
	}
	if _, ok := m.items[v.VendorID]; !ok {
		return Vendor{}, ErrNotFound
	}
	v.HasDPAFile = v.DPAFilePath != ""
	m.items[v.VendorID] = v
	return v, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, v := range m.items {
		s.TotalVendors++
		if v.DPAStatus == DPAApproved {
			s.ApprovedVendors++
		}
		if v.DPAStatus == DPAPending {
			s.PendingDPA++
		}
		if v.RiskLevel == RiskHigh {
			s.HighRiskVendors++
		}
	}
	return s, nil
}

func (m *memRepo) LogAccess(_ context.Context, entry AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memRepo) AccessLogs(_ context.Context, vendorID string, limit, offset int) ([]AccessLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []AccessLog{}
	for _, l := range m.logs {
		if vendorID == "" || l.VendorID == vendorID {
			out = append(out, l)
		}
	}
	return out, nil
}

type sentEvent struct {
	event notifications.EventType
	data  map[string]any
}

type recordingNotifier struct {
	events []sentEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event notifications.EventType, data map[string]any) {
	r.events = append(r.events, sentEvent{event: event, data: data})
}

func (r *recordingNotifier) last() sentEvent {
	if len(r.events) == 0 {
		return sentEvent{}
	}
	return r.events[len(r.events)-1]
}

type accessCounter struct {
	granted, denied int
}

func (a *accessCounter) AccessChecked(granted bool) {
	if granted {
		a.granted++
	} else {
		a.denied++
	}
}
