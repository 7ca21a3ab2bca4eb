// Package archive stores raw uploaded files in Google Cloud Storage so the
// original bytes of every ingestion can be replayed or audited after the
// ephemeral in-memory rows are gone.
package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver writes raw uploads to a GCS bucket. It assumes Application Default
// Credentials are configured.
type Archiver struct {
	client *storage.Client
	bucket string
}

// New creates an archiver for the given bucket.
func New(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

// ArchiveUpload stores the raw bytes of one upload under
// raw/<tenant>/<yyyy/mm/dd>/<job>.csv and returns the object's gs:// URI.
func (a *Archiver) ArchiveUpload(ctx context.Context, tenantID, jobID string, raw []byte) (string, error) {
	objectName := fmt.Sprintf("raw/%s/%s/%s.csv", tenantID, time.Now().UTC().Format("2006/01/02"), jobID)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write archive object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize archive object: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}
