package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dpdp/internal/domain/auth"
	"dpdp/internal/platform/config"
)

type seedPurpose struct {
	id, name, description, category string
	required                         bool
}

var defaultPurposes = []seedPurpose{
	{"essential", "Essential", "Required for the service to work, such as security and session handling.", "essential", true},
	{"analytics", "Analytics", "Helps us understand how the service is used so we can improve it.", "analytics", false},
	{"marketing", "Marketing", "Lets us show relevant offers and measure campaigns.", "marketing", false},
	{"personalization", "Personalization", "Remembers preferences to tailor content to you.", "personalization", false},
}

// Seed makes the database usable on first boot: permissions, roles, the
// bootstrap admin, the starter purpose catalog and the settings row. Every
// step is idempotent.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if err := ensureAdminUser(ctx, pool, roleIDs[auth.RoleAdmin], cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		return err
	}

	if err := ensurePurposes(ctx, pool); err != nil {
		return err
	}

	_, err = pool.Exec(ctx, "INSERT INTO app_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING")
	return err
}

func ensurePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	roleIDs := map[string]string{}
	for roleName := range auth.RolePermissions {
		var id string
		err := pool.QueryRow(ctx, `
    INSERT INTO roles (name) VALUES ($1)
    ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
    RETURNING id`, roleName).Scan(&id)
		if err != nil {
			return nil, err
		}
		roleIDs[roleName] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool, roleIDs map[string]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id, key FROM permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		permMap[key] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for roleName, perms := range auth.RolePermissions {
		roleID := roleIDs[roleName]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return errors.New("permission not found: " + permKey)
			}
			_, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleID, permID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, roleID, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, "INSERT INTO users (email, password_hash, role_id) VALUES ($1, $2, $3)", email, hash, roleID)
	return err
}

func ensurePurposes(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range defaultPurposes {
		_, err := pool.Exec(ctx, `
    INSERT INTO consent_purposes (id, name, description, required, category)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO NOTHING`, p.id, p.name, p.description, p.required, p.category)
		if err != nil {
			return err
		}
	}
	return nil
}
