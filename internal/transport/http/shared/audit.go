package shared

import (
	"context"
	"log/slog"
	"net/http"

	"dpdp/internal/transport/http/middleware"
)

// Auditor is satisfied by *audit.Service.
type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, changes any) error
}

// RecordAudit writes an audit entry for the request's user. A failed write
// is logged and never fails the request.
func RecordAudit(r *http.Request, auditor Auditor, action, entityType, entityID string, changes any) {
	if auditor == nil {
		return
	}
	user, _ := middleware.GetUser(r.Context())
	ctx := r.Context()
	err := auditor.Record(ctx, user.UserID, action, entityType, entityID, middleware.GetRequestID(ctx), middleware.ClientIP(r), changes)
	if err != nil {
		slog.Warn("audit record failed", "action", action, "entityType", entityType, "entityId", entityID, "err", err)
	}
}
