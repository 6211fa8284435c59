package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"dpdp/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

// WithKeyFunc replaces the default actor-or-IP bucket key.
func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

// RateLimit allows limit requests per window for each key. Public widget
// paths are answered with the widget envelope, everything else with the
// admin one.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return rl.middleware
}

// SensitiveMutationRateLimit adds tighter budgets to login, MFA and the
// vendor and consent mutations listed in sensitiveRoutes.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	authByIP := newRateLimiter(authLimit, window, clientIPKey)
	authByEmail := newRateLimiter(authLimit, window, AuthEmailOrIPKey("email"))
	byActor := newRateLimiter(max(baseLimit/2, 1), window, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				if !authByIP.allow(w, r) || !authByEmail.allow(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !byActor.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthEmailOrIPKey buckets login attempts by the JSON body's field, falling
// back to the caller address.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	if field = strings.TrimSpace(field); field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := peekJSONField(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return clientIPKey(r)
	}
}

// ClientIPKey buckets by caller address. The public widget routes use it
// since they carry no session.
func ClientIPKey(r *http.Request) string {
	return clientIPKey(r)
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// pruneAt is the bucket count above which expired buckets are dropped.
// Public routes key by IP, so the map would otherwise grow with every
// visitor a host page ever had.
const pruneAt = 4096

type rateBucket struct {
	count int
	reset time.Time
}

type rateLimiter struct {
	limit  int
	window time.Duration
	keyFn  RateLimitKeyFunc
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*rateBucket
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		now:     time.Now,
		buckets: map[string]*rateBucket{},
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.allow(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// take counts one request against key and reports what is left.
func (rl *rateLimiter) take(key string) (remaining int, resetIn time.Duration, ok bool) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.buckets) > pruneAt {
		for k, b := range rl.buckets {
			if now.After(b.reset) {
				delete(rl.buckets, k)
			}
		}
	}
	b, found := rl.buckets[key]
	if !found || now.After(b.reset) {
		b = &rateBucket{reset: now.Add(rl.window)}
		rl.buckets[key] = b
	}
	b.count++
	return rl.limit - b.count, b.reset.Sub(now), b.count <= rl.limit
}

func (rl *rateLimiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}
	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	remaining, resetIn, ok := rl.take(key)
	resetSec := ceilSeconds(resetIn)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if ok {
		return true
	}

	h.Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "key", key, "path", r.URL.Path, "method", r.Method, "limit", rl.limit)
	if isPublicAPI(r.URL.Path) {
		api.PublicFail(w, http.StatusTooManyRequests, "Too many requests", "")
	} else {
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	}
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// peekJSONField reads one string field from a JSON body and restores the
// body for the handler.
func peekJSONField(r *http.Request, field string) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]any
	if json.Unmarshal(raw, &payload) != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

// sensitiveRoute matches an admin path (without /api/v1) by prefix and,
// when suffixes are given, by one of them.
type sensitiveRoute struct {
	prefix   string
	exact    bool
	suffixes []string
	scope    sensitiveScope
}

var sensitiveRoutes = []sensitiveRoute{
	{prefix: "/auth/login", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/auth/mfa/setup", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/auth/mfa/enable", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/vendors/bulk-actions", exact: true, scope: sensitiveScopeActor},
	{prefix: "/vendors/dpa-sweep", exact: true, scope: sensitiveScopeActor},
	{prefix: "/vendors/", suffixes: []string{"/approve", "/reject", "/dpa"}, scope: sensitiveScopeActor},
	{prefix: "/consents/", suffixes: []string{"/withdraw"}, scope: sensitiveScopeActor},
}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return sensitiveScopeNone
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	for _, route := range sensitiveRoutes {
		if route.exact {
			if path == route.prefix {
				return route.scope
			}
			continue
		}
		if !strings.HasPrefix(path, route.prefix) {
			continue
		}
		for _, suffix := range route.suffixes {
			if strings.HasSuffix(path, suffix) {
				return route.scope
			}
		}
	}
	return sensitiveScopeNone
}
