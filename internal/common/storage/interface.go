package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used to archive judged submissions.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string, metadata map[string]string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
	Metadata    map[string]string
}
