package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"dpdp/internal/domain/auth"
)

// SessionChecker confirms a token's session has not been revoked.
type SessionChecker interface {
	SessionActive(ctx context.Context, userID, sessionID string) (bool, error)
}

// Auth attaches the bearer token's user to the context. Requests without a
// valid token pass through anonymously; RequirePermission rejects them.
func Auth(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if sessions != nil && claims.SessionID != "" {
				active, err := sessions.SessionActive(r.Context(), claims.UserID, claims.SessionID)
				if err != nil {
					slog.Warn("session lookup failed", "userId", claims.UserID, "err", err)
				}
				if err != nil || !active {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := WithUser(r.Context(), auth.UserContext{
				UserID:    claims.UserID,
				RoleID:    claims.RoleID,
				RoleName:  claims.RoleName,
				SessionID: claims.SessionID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
