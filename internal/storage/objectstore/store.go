package objectstore

import (
	"context"
	"io"
	"time"
)

// Store abstracts S3-compatible object storage. The orchestrator depends on
// this interface only; MinIO is the production implementation.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// SizeOrZero resolves the stored size of an object, returning 0 when the
// object cannot be statted. Artifacts whose size cannot be resolved are
// still recorded, never dropped.
func SizeOrZero(ctx context.Context, store Store, bucket, key string) int64 {
	if store == nil {
		return 0
	}
	info, err := store.Stat(ctx, bucket, key)
	if err != nil {
		return 0
	}
	return info.Size
}
