package middleware

import (
	"context"
	"net/http"

	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, roleID, permission string) (bool, error)
}

// StaticPermissions answers from the built-in role table by role name. It
// backs deployments and tests without seeded role rows.
type StaticPermissions struct{}

func (StaticPermissions) allows(user auth.UserContext, permission string) bool {
	return auth.Allows(user.RoleName, permission)
}

func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}

			var allowed bool
			if store == nil {
				allowed = StaticPermissions{}.allows(user, permission)
			} else {
				var err error
				allowed, err = store.HasPermission(r.Context(), user.RoleID, permission)
				if err != nil {
					api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", GetRequestID(r.Context()))
					return
				}
			}
			if !allowed {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
