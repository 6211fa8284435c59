package audithandler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/handlers/handlertest"
)

type fakeLister struct {
	entries []audit.Entry
	filter  audit.Filter
	limit   int
}

func (f *fakeLister) List(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Entry, int, error) {
	f.filter, f.limit = filter, limit
	var out []audit.Entry
	for _, e := range f.entries {
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		out = append(out, e)
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func newLister() *fakeLister {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &fakeLister{entries: []audit.Entry{
		{ID: "1", EntityType: audit.EntityVendor, EntityID: "vnd_1", Action: audit.ActionApprove, UserID: "u-1", CreatedAt: at, Changes: json.RawMessage(`{"risk":"LOW"}`)},
		{ID: "2", EntityType: audit.EntityTemplate, EntityID: "tpl_1", Action: audit.ActionCreate, UserID: "u-2", CreatedAt: at},
		{ID: "3", EntityType: audit.EntityVendor, EntityID: "vnd_2", Action: audit.ActionReject, UserID: "u-1", CreatedAt: at},
	}}
}

func TestListFiltersAndPages(t *testing.T) {
	lister := newLister()
	h := handlertest.Router(auth.RoleDPO, func(r chi.Router) { NewHandler(lister, nil).RegisterRoutes(r) })

	rec, env := handlertest.Do(t, h, http.MethodGet, "/audit?entityType=vendor&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	var entries []audit.Entry
	handlertest.Decode(t, env, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "vnd_1", entries[0].EntityID)
	assert.JSONEq(t, `{"total":2,"limit":1,"offset":0}`, string(env.Meta))
	assert.Equal(t, audit.EntityVendor, lister.filter.EntityType)
}

func TestAnalystCannotReadAudit(t *testing.T) {
	h := handlertest.Router(auth.RoleAnalyst, func(r chi.Router) { NewHandler(newLister(), nil).RegisterRoutes(r) })
	rec, _ := handlertest.Do(t, h, http.MethodGet, "/audit", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
