package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dpdp/internal/platform/querier"
)

const (
	EntityTemplate = "template"
	EntityConsent  = "consent"
	EntityVendor   = "vendor"
	EntityPurpose  = "purpose"
	EntitySettings = "settings"
)

const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionWithdraw = "withdraw"
)

type Entry struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	UserID     string          `json:"userId"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     string
}

type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, changes any) error {
	var changesJSON []byte
	if changes != nil {
		payload, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		changesJSON = payload
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_logs (entity_type, entity_id, action, user_id, changes, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, entityType, entityID, action, actorID, changesJSON, requestID, ip)
	return err
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, int, error) {
	where, args := buildWhere(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := "SELECT id::text, entity_type, entity_id, action, user_id, changes, request_id, ip, created_at FROM audit_logs" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.UserID, &changes, &e.RequestID, &e.IP, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(changes) > 0 {
			e.Changes = changes
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func buildWhere(filter Filter) (string, []any) {
	query := " WHERE 1=1"
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)
	add("action", filter.Action)
	add("user_id", filter.UserID)
	return query, args
}
