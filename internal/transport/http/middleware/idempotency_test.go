package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dpdp/internal/domain/auth"
)

type memIdempotency struct {
	entries map[string]StoredResponse
	hashes  map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: map[string]StoredResponse{}, hashes: map[string]string{}}
}

func (m *memIdempotency) Check(_ context.Context, userID, endpoint, key, hash string) (StoredResponse, bool, error) {
	id := userID + "|" + endpoint + "|" + key
	stored, ok := m.entries[id]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if m.hashes[id] != hash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (m *memIdempotency) Save(_ context.Context, userID, endpoint, key, hash string, resp StoredResponse) error {
	id := userID + "|" + endpoint + "|" + key
	m.entries[id] = resp
	m.hashes[id] = hash
	return nil
}

func TestIdempotentReplaysFirstResponse(t *testing.T) {
	calls := 0
	handler := Idempotent(newMemIdempotency())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"data":{"vendor_id":"ven_1"}}`))
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "k-1")
		req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"vendor_name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := send(`{"vendor_name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	conflict := send(`{"vendor_name":"Other"}`)
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotentPassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Idempotent(newMemIdempotency())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors", strings.NewReader(`{}`))
		req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "u1"}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}
