package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/storage/postgres"
)

// TestStore_AcquireCompleteReacquire is a live integration test; it is
// skipped unless TEST_POSTGRES_URL points at a reachable database.
func TestStore_AcquireCompleteReacquire(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set, skipping PostgreSQL tests")
	}

	ctx := context.Background()
	store, err := postgres.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	t.Cleanup(func() {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			defer db.Close()
			_, _ = db.Exec("TRUNCATE reconcile_leases, rundb")
		}
	})

	now := time.Now().UTC()
	acquired, err := store.TryAcquire(ctx, "sync", "run-1", time.Hour, now)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.TryAcquire(ctx, "sync", "run-2", time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, store.Complete(ctx, "sync", "run-1", now.Add(time.Minute)))

	rec, err := store.Read(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, rec.Status)

	require.NoError(t, store.RecordRun(ctx, runctl.InstitutionRun{
		Institution:   "inst-a",
		LastRunID:     "run-1",
		LastStatus:    domain.RunStatusCompleted,
		LastStartedAt: now,
	}, now.Add(time.Minute)))

	runs, err := store.LastRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "inst-a", runs[0].Institution)
}
