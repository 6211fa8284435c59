// Package handlertest mounts admin handlers behind a fake signed-in user.
package handlertest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/middleware"
)

// Envelope mirrors api.Envelope with raw data for per-test decoding.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// Router serves register's routes as a user holding role. An empty role
// leaves the request anonymous.
func Router(role string, register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role != "" {
				req = req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{
					UserID:   "user-" + role,
					RoleID:   "role-" + role,
					RoleName: role,
				}))
			}
			next.ServeHTTP(w, req)
		})
	})
	register(r)
	return r
}

// Do sends body (marshalled unless it is already an io.Reader) and decodes
// the admin envelope when the response is JSON.
func Do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env Envelope
	if ct := rec.Header().Get("Content-Type"); len(ct) >= 16 && ct[:16] == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// Decode unmarshals the envelope data into dst.
func Decode(t *testing.T, env Envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// Auditor collects audit entries in memory.
type Auditor struct {
	mu      sync.Mutex
	Entries []Entry
}

type Entry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Changes    any
}

func (a *Auditor) Record(_ context.Context, actorID, action, entityType, entityID, _, _ string, changes any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, Entry{ActorID: actorID, Action: action, EntityType: entityType, EntityID: entityID, Changes: changes})
	return nil
}

func (a *Auditor) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.EntityType+"."+e.Action)
	}
	return out
}
