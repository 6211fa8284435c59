package middleware

import (
	"net/http"
	"strings"
)

const (
	publicTemplatesPrefix = "/api/public/"
	publicConsentPrefix   = "/api/blutic-svc/"
)

func isPublicAPI(path string) bool {
	return strings.HasPrefix(path, publicTemplatesPrefix) || strings.HasPrefix(path, publicConsentPrefix)
}

// PublicCORS opens the widget endpoints to any origin. Preflight requests
// are answered directly.
func PublicCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPublicAPI(r.URL.Path) && !strings.HasPrefix(r.URL.Path, loaderPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("Access-Control-Allow-Origin", "*")
		headers.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		headers.Set("Access-Control-Max-Age", "600")
		headers.Add("Vary", "Origin")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
