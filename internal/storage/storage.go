// Package storage wraps the remote object store behind a small interface so
// handlers and tests do not depend on a live MinIO endpoint.
package storage

import (
	"context"
	"io"
)

// UploadResult describes a stored object: a public URL for serving and an
// opaque key for later deletion.
type UploadResult struct {
	URL string
	Key string
}

type ObjectStore interface {
	Put(ctx context.Context, folder, filename string, reader io.Reader, size int64, contentType string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
}
