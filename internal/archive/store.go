// Package archive writes raw validated report payloads to an
// S3-compatible bucket as an audit trail for the backfill path.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cyclecounts/traffic-pipeline/internal/ingest"
	"github.com/cyclecounts/traffic-pipeline/internal/telraam"
)

// Store writes report arrays to object storage. The objects are a
// reprocessing source and are never queried by the ingestion core.
type Store struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ObjectKey builds the audit key for one sensor and window:
// {sensor_id}/{start_date}-{end_date}.json with YYYYMMDD dates.
func ObjectKey(segmentID int64, window ingest.Window) string {
	return fmt.Sprintf("%d/%s-%s.json",
		segmentID,
		window.Start.UTC().Format("20060102"),
		window.End.UTC().Format("20060102"))
}

// ArchiveReports writes the raw validated report array as JSON,
// overwriting any existing object for the same key.
func (s *Store) ArchiveReports(ctx context.Context, segmentID int64, window ingest.Window, reports []telraam.HourlyReport) error {
	payload, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}

	key := ObjectKey(segmentID, window)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
