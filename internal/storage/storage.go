package storage

import (
	"context"
	"errors"
	"io"
)

// MaxUploadSize caps uploaded blobs at 5MB.
const MaxUploadSize = 5 << 20

var (
	ErrSizeLimit = errors.New("file exceeds upload size limit")
	ErrUpload    = errors.New("upload failed")
)

// Storage is the blob-storage collaborator: it takes bytes and yields a
// retrievable URL. The chat core only ever persists the URL.
type Storage interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}
