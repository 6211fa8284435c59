package middleware

import (
	"net/http"
	"strings"
)

const (
	strictCSP    = "default-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self'"
	embeddedCSP  = "default-src 'self'; base-uri 'none'; form-action 'none'; frame-ancestors *; object-src 'none'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self'; connect-src 'self'"
	embedPrefix  = "/iframe/"
	loaderPrefix = "/sdk/"
)

// SecureHeaders sets the browser hardening headers. The banner page must be
// framable by any customer site and the loader script must load
// cross-origin, so both get relaxed framing and resource policies.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			headers.Set("X-Content-Type-Options", "nosniff")
			headers.Set("Referrer-Policy", "no-referrer")
			headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			switch {
			case strings.HasPrefix(r.URL.Path, embedPrefix):
				headers.Set("Content-Security-Policy", embeddedCSP)
				headers.Set("Cross-Origin-Resource-Policy", "cross-origin")
			case strings.HasPrefix(r.URL.Path, loaderPrefix), isPublicAPI(r.URL.Path):
				headers.Set("X-Frame-Options", "DENY")
				headers.Set("Cross-Origin-Resource-Policy", "cross-origin")
			default:
				headers.Set("X-Frame-Options", "DENY")
				headers.Set("Content-Security-Policy", strictCSP)
				headers.Set("Cross-Origin-Opener-Policy", "same-origin")
				headers.Set("Cross-Origin-Resource-Policy", "same-origin")
			}
			if isProd {
				headers.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
			}
			next.ServeHTTP(w, r)
		})
	}
}
