package consent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository used by tests and the widget
// probe.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Upsert(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()

	latest := -1
	for i, r := range m.records {
		if r.TemplateID != rec.TemplateID || r.UserReferenceID != rec.UserReferenceID {
			continue
		}
		if latest < 0 || r.CreatedAt.After(m.records[latest].CreatedAt) {
			latest = i
		}
	}
	if latest >= 0 {
		cur := m.records[latest]
		cur.Status = rec.Status
		cur.AcceptedPurposes = append([]string(nil), rec.AcceptedPurposes...)
		cur.Platform = rec.Platform
		cur.Language = rec.Language
		cur.UserAgent = rec.UserAgent
		cur.Browser = rec.Browser
		cur.OS = rec.OS
		cur.IPAddress = rec.IPAddress
		cur.ConsentTimestamp = rec.ConsentTimestamp
		cur.ExpiryDate = rec.ExpiryDate
		cur.Version++
		cur.UpdatedAt = now
		m.records[latest] = cur
		return cur, false, nil
	}

	rec.AcceptedPurposes = append([]string(nil), rec.AcceptedPurposes...)
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records = append(m.records, rec)
	return rec, true, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryStore) List(_ context.Context, filter Filter, limit, offset int) ([]Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.records {
		if filter.TemplateID != "" && r.TemplateID != filter.TemplateID {
			continue
		}
		if filter.UserReferenceID != "" && r.UserReferenceID != filter.UserReferenceID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConsentTimestamp.After(out[j].ConsentTimestamp) })
	total := len(out)
	if offset > total {
		offset = total
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *MemoryStore) Withdraw(_ context.Context, id string, at time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID != id {
			continue
		}
		r.Status = StatusWithdrawn
		r.AcceptedPurposes = []string{}
		r.Version++
		r.UpdatedAt = at
		m.records[i] = r
		return r, nil
	}
	return Record{}, ErrNotFound
}

// Len reports how many records exist.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
