//go:build integration

// Package dbtest starts a throwaway Postgres with the schema applied.
package dbtest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"dpdp/internal/platform/db"
)

func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dpdp"),
		postgres.WithUsername("dpdp"),
		postgres.WithPassword("dpdp"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

// InsertTemplate stores a minimal active template so records can reference it.
func InsertTemplate(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
    INSERT INTO consent_templates (id, name, status, banner_config, purposes, created_by, organization_id)
    VALUES ($1, 'Test', 'active', '{}', '[{"id":"essential","name":"Essential","required":true}]', 'test', 'org')`, id)
	require.NoError(t, err)
}
