package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinIOAPI is the subset of the MinIO client the source needs.
// Satisfied by *minio.Client; tests substitute a fake.
type MinIOAPI interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinIOSource streams a tabular object from a MinIO (or other S3-compatible)
// endpoint via the native client.
type MinIOSource struct {
	client MinIOAPI
	bucket string
	object string
}

// NewMinIOSource creates a source for the given bucket/object.
func NewMinIOSource(client MinIOAPI, bucket, object string) *MinIOSource {
	return &MinIOSource{client: client, bucket: bucket, object: object}
}

func (s *MinIOSource) Locator() string {
	return fmt.Sprintf("minio://%s/%s", s.bucket, s.object)
}

func (s *MinIOSource) Open(ctx context.Context) (io.ReadCloser, error) {
	// GetObject defers errors to the first Read; stat up front so a
	// missing object fails the load immediately.
	if _, err := s.client.StatObject(ctx, s.bucket, s.object, minio.StatObjectOptions{}); err != nil {
		return nil, &SourceUnavailableError{Locator: s.Locator(), Err: err}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, &SourceUnavailableError{Locator: s.Locator(), Err: err}
	}
	return obj, nil
}

func (s *MinIOSource) Size(ctx context.Context) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.object, minio.StatObjectOptions{})
	if err != nil {
		return 0, &SourceUnavailableError{Locator: s.Locator(), Err: err}
	}
	return info.Size, nil
}
