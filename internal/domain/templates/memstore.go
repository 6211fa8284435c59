package templates

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository for tests and the widget probe.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]Template
	records  map[string]int
	getCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Template{}, records: map[string]int{}}
}

// SetRecordCount fakes the number of consent records referencing id.
func (m *MemoryStore) SetRecordCount(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = n
}

// GetCalls reports how often Get reached the store.
func (m *MemoryStore) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func (m *MemoryStore) Create(_ context.Context, id string, in Input) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	t := Template{ID: id, Name: in.Name, Description: in.Description, Status: in.Status, BannerConfig: in.BannerConfig,
		Purposes: in.Purposes, Translations: in.Translations, CreatedBy: in.CreatedBy, OrganizationID: in.OrganizationID,
		CreatedAt: now, UpdatedAt: now}
	m.items[id] = t
	return t, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	t, ok := m.items[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter, limit, offset int) ([]Template, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Template
	for _, t := range m.items {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.OrganizationID != "" && t.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, in Input) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	t.Name, t.Description, t.Status = in.Name, in.Description, in.Status
	t.BannerConfig, t.Purposes, t.Translations = in.BannerConfig, in.Purposes, in.Translations
	t.OrganizationID = in.OrganizationID
	t.UpdatedAt = time.Now().UTC()
	m.items[id] = t
	return t, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) CountRecords(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *MemoryStore) Summaries(_ context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Summary
	for _, t := range m.items {
		out = append(out, Summary{ID: t.ID, Name: t.Name, Status: t.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
