package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"dpdp/internal/domain/auth"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimitUsesUserKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())
	user := auth.UserContext{UserID: "user-1", RoleName: auth.RoleDPO}

	first := httptest.NewRequest(http.MethodPost, "/api/v1/vendors/v1/approve", nil)
	first = first.WithContext(WithUser(first.Context(), user))
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/vendors/v1/approve", nil)
	second = second.WithContext(WithUser(second.Context(), user))
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by user key, got %d", secondRec.Code)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	first := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"a@example.com"}`))
	first.RemoteAddr = "203.0.113.10:4444"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"b@example.com"}`))
	second.RemoteAddr = "203.0.113.10:5555"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by ip key, got %d", secondRec.Code)
	}
}

func TestRateLimitWindowReset(t *testing.T) {
	limited := RateLimit(1, 40*time.Millisecond)(noContent())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
		req.RemoteAddr = "192.0.2.20:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	time.Sleep(50 * time.Millisecond)
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected third request after window reset to pass, got %d", code)
	}
}

func TestRateLimitReturnsRetryMetadata(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	req1 := httptest.NewRequest(http.MethodGet, "/api/v1/vendors", nil)
	req1.RemoteAddr = "192.0.2.30:1234"
	limited.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/vendors", nil)
	req2.RemoteAddr = "192.0.2.30:1234"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req2)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected throttled response, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected X-RateLimit-Reset header")
	}
}

func TestRateLimitPublicEnvelope(t *testing.T) {
	limited := RateLimit(1, time.Minute, WithKeyFunc(ClientIPKey))(noContent())
	path := "/api/blutic-svc/api/v1/public/consent-template/update-user"

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.99, 10.0.0.1")
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if i == 0 {
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected throttled response, got %d", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["success"] != false || body["error"] != "Too many requests" {
			t.Fatalf("expected widget error envelope, got %v", body)
		}
	}
}

func TestSensitiveMutationRateLimitScope(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/consents", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected read route request %d to bypass sensitive limits, got %d", i+1, rec.Code)
		}
	}

	user := auth.UserContext{UserID: "dpo-1", RoleName: auth.RoleDPO}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/consents/c1/withdraw", nil)
		req = req.WithContext(WithUser(req.Context(), user))
		req.RemoteAddr = "198.51.100.41:9999"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if i < 2 && rec.Code != http.StatusNoContent {
			t.Fatalf("expected sensitive request %d to pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third sensitive request to be throttled, got %d", rec.Code)
		}
	}
}

func TestSensitiveRateScope(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   sensitiveScope
	}{
		{http.MethodPost, "/api/v1/auth/login", sensitiveScopeAuth},
		{http.MethodPost, "/api/v1/auth/mfa/enable", sensitiveScopeAuth},
		{http.MethodPost, "/api/v1/vendors/bulk-actions", sensitiveScopeActor},
		{http.MethodPost, "/api/v1/vendors/v9/dpa", sensitiveScopeActor},
		{http.MethodPost, "/api/v1/vendors/v9/reject", sensitiveScopeActor},
		{http.MethodGet, "/api/v1/vendors/v9/dpa", sensitiveScopeNone},
		{http.MethodPut, "/api/v1/vendors/v9", sensitiveScopeNone},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if got := sensitiveRateScope(req); got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestRateLimiterPrunesExpiredBuckets(t *testing.T) {
	rl := newRateLimiter(5, time.Minute, clientIPKey)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i <= pruneAt; i++ {
		rl.take("ip:198.51.100." + strconv.Itoa(i))
	}
	if len(rl.buckets) != pruneAt+1 {
		t.Fatalf("expected %d buckets, got %d", pruneAt+1, len(rl.buckets))
	}

	now = now.Add(2 * time.Minute)
	if _, _, ok := rl.take("ip:203.0.113.1"); !ok {
		t.Fatal("expected fresh key to pass")
	}
	if len(rl.buckets) != 1 {
		t.Fatalf("expected expired buckets to be dropped, got %d", len(rl.buckets))
	}
}

func TestRateLimitRemainingHeader(t *testing.T) {
	limited := RateLimit(3, time.Minute, WithKeyFunc(ClientIPKey))(noContent())
	for want := 2; want >= 0; want-- {
		req := httptest.NewRequest(http.MethodGet, "/api/public/templates/tpl_1", nil)
		req.RemoteAddr = "192.0.2.77:1000"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(want) {
			t.Fatalf("expected remaining %d, got %s", want, got)
		}
	}
}
