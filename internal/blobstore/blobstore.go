package blobstore

import (
	"context"
	"io"
)

// UploadResult is the handle returned by the store for an uploaded object.
type UploadResult struct {
	URL      string
	PublicID string
}

// BlobStore is the external object store for catalog images. Uploads are
// fatal on failure; deletes are best-effort and callers are expected to log
// and continue, since catalog consistency never depends on a blob being
// purged.
type BlobStore interface {
	Upload(ctx context.Context, content io.Reader, filename, folder string) (*UploadResult, error)
	Delete(ctx context.Context, publicID string) error
}
