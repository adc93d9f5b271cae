// Package gcs is an optional dry-run audit sink: it mirrors a run's
// planned operation stream to a GCS bucket as JSON objects, so an
// operator can inspect what a dry run would have done without reading
// application logs (spec §4.6: "it still emits the reconciler's planned
// operation stream to observers").
package gcs

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/storage"
)

// Store writes one JSON object per (institution, run) audit log.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a GCS-backed audit store. It assumes the client is
// authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewStore(ctx context.Context, bucketName string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Store{client: client, bucket: bucketName}, nil
}

func (s *Store) objectName(institution, runID string) string {
	return fmt.Sprintf("%s/%s.json", institution, runID)
}

// PutOperationLog writes entries as the audit record for one
// institution's run, overwriting any prior object at that path.
func (s *Store) PutOperationLog(ctx context.Context, institution, runID string, entries any) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log: %w", err)
	}

	obj := s.client.Bucket(s.bucket).Object(s.objectName(institution, runID))
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write audit object: %w", err)
	}
	return w.Close()
}

// Close releases the underlying GCS client.
func (s *Store) Close() error { return s.client.Close() }
