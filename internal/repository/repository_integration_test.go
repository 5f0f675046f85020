//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/testutil"
)

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	require.NoError(t, err, "connect db")
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	require.NoError(t, err, "acquire db lock")
	t.Cleanup(func() {
		_ = unlock()
	})

	require.NoError(t, repo.ResetSchema(ctx), "reset schema")

	return ctx, repo
}

func createTestUser(t *testing.T, ctx context.Context, repo *Repository, prefix string) *model.Principal {
	t.Helper()
	user := testutil.NewTestPrincipal(t, prefix)
	require.NoError(t, repo.CreateUser(ctx, user))
	require.NotZero(t, user.ID)
	return user
}

func TestIntegrationMigration_TablesExist(t *testing.T) {
	ctx, repo := newTestEnv(t)

	for _, table := range []string{"users", "media_records", "device_keys"} {
		t.Run(table, func(t *testing.T) {
			var exists bool
			err := repo.Pool().QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM information_schema.tables
					WHERE table_schema = 'public' AND table_name = $1
				)`, table).Scan(&exists)
			require.NoError(t, err)
			require.True(t, exists, "table %q should exist after migrations", table)
		})
	}
}

func TestIntegrationMigration_Idempotent(t *testing.T) {
	ctx, repo := newTestEnv(t)

	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx))
}
