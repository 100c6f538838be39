// Package storage defines where pipeline artifacts are written and read.
// The ingest command writes the enriched batch through a BlobStore and the
// sync command reads it back, possibly in a different process or host.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when the object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore persists artifacts by path.
type BlobStore interface {
	// PutObject writes data under path and returns a URI for logs.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes stored under path.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
