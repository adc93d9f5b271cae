package gcs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestGCSStore_PutOperationLog is a live integration test against a real
// bucket; it is skipped unless TEST_GCS_BUCKET is set (Application
// Default Credentials are assumed to be configured).
func TestGCSStore_PutOperationLog(t *testing.T) {
	bucket := os.Getenv("TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("TEST_GCS_BUCKET not set, skipping GCS tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewStore(ctx, bucket)
	require.NoError(t, err)
	defer store.Close()

	runID := "test-run-1"
	institution := "test-institution"
	entries := []string{"create unit A", "terminate engagement B"}

	require.NoError(t, store.PutOperationLog(ctx, institution, runID, entries))

	obj := store.client.Bucket(bucket).Object(store.objectName(institution, runID))
	require.NoError(t, obj.Delete(ctx))
}
