//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("entity_filter_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/entity_filter_test?sslmode=disable", host, port.Port())
}

func TestRuleRepository_Postgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	db, err := Open("postgres", dsn, 4)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, ""))
	require.NoError(t, Migrate(ctx, db, ""), "migration must be idempotent")

	repo := NewRuleRepository(db, "")
	require.NoError(t, repo.Create(ctx, &EntityRule{TenantID: "acme", Entity: "E5Q"}))
	require.NoError(t, repo.Create(ctx, &EntityRule{TenantID: "acme", Entity: "75寸", AttributeType: "尺寸"}))
	assert.Error(t, repo.Create(ctx, &EntityRule{TenantID: "acme", Entity: "E5Q"}))

	created, err := repo.Upsert(ctx, &EntityRule{TenantID: "acme", Entity: "75寸", AttributeType: "size"})
	require.NoError(t, err)
	assert.False(t, created)

	rules, err := repo.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	got, err := repo.GetByEntity(ctx, "acme", "75寸")
	require.NoError(t, err)
	assert.Equal(t, "size", got.AttributeType)

	deleted, err := repo.DeleteByTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
