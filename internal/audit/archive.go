package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/sealkeep/sessionvault/internal/model"
)

// Internal adapter interface to enable mocking without a real MinIO server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Wrapper to adapt *minio.Client to minioAPI.
type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

var _ model.AuditSink = (*ArchiveSink)(nil)

// ArchiveSink retains every audit event as a JSON object in a bucket,
// date-partitioned for later analysis. It is an optional second sink
// alongside the structured log.
type ArchiveSink struct {
	api    minioAPI
	bucket string
}

// NewArchiveSink creates an archive sink using a real *minio.Client instance.
func NewArchiveSink(ctx context.Context, client *minio.Client, bucket string) (*ArchiveSink, error) {
	return NewArchiveSinkWithAPI(ctx, minioClientWrapper{c: client}, bucket)
}

// NewArchiveSinkWithAPI allows injecting a mockable API (used in tests).
func NewArchiveSinkWithAPI(ctx context.Context, api minioAPI, bucket string) (*ArchiveSink, error) {
	s := &ArchiveSink{
		api:    api,
		bucket: bucket,
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return s, nil
}

func (s *ArchiveSink) ensureBucketExists(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *ArchiveSink) Emit(ctx context.Context, event model.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := fmt.Sprintf("%s/%s-%s.json",
		event.Timestamp.UTC().Format("2006/01/02"),
		event.Timestamp.UTC().Format("150405"),
		uuid.NewString(),
	)

	_, err = s.api.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("failed to archive audit event: %w", err)
	}
	return nil
}
