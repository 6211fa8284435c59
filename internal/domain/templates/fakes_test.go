package templates

import (
	"context"
	"sync"

	"dpdp/internal/widget"
)

type memCache struct {
	mu          sync.Mutex
	items       map[string]widget.Snapshot
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{items: map[string]widget.Snapshot{}}
}

func (c *memCache) Get(_ context.Context, id, lang, platform string) (widget.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[id+"|"+lang+"|"+platform]
	return s, ok, nil
}

func (c *memCache) Set(_ context.Context, snap widget.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[snap.ID+"|"+snap.Language+"|"+snap.Platform] = snap
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if len(k) > len(id) && k[:len(id)+1] == id+"|" {
			delete(c.items, k)
		}
	}
	c.invalidated = append(c.invalidated, id)
	return nil
}

type hitCounter struct{ hits, misses int }

func (h *hitCounter) CacheLookup(hit bool) {
	if hit {
		h.hits++
		return
	}
	h.misses++
}

func validInput() Input {
	return Input{
		Name:   "Main site",
		Status: StatusActive,
		BannerConfig: widget.BannerConfig{
			Title:               "We value your privacy",
			Description:         "Choose how we use your data.",
			AcceptButtonText:    "Accept All",
			RejectButtonText:    "Reject All",
			CustomizeButtonText: "Customize",
			Position:            "bottom",
			Theme:               "light",
			PrimaryColor:        "#3b82f6",
			BackgroundColor:     "#ffffff",
			TextColor:           "#374151",
		},
		Purposes: []widget.Purpose{
			{ID: "essential", Name: "Essential", Description: "Required", Required: true, Category: "essential"},
			{ID: "analytics", Name: "Analytics", Description: "Usage stats", Category: "analytics"},
		},
		Translations: map[string]widget.Translation{
			"hi": {
				Title:    "हम आपकी गोपनीयता को महत्व देते हैं",
				Purposes: map[string]widget.PurposeText{"analytics": {Name: "विश्लेषण"}},
			},
		},
		CreatedBy:      "admin@example.com",
		OrganizationID: "org_1",
	}
}
