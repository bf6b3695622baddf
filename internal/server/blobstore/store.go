// Package blobstore persists raw byte sequences keyed by logical path.
// The reference backend is the local filesystem; an S3-compatible
// backend is provided for object-storage deployments. Operations are
// idempotent with respect to path: re-uploading overwrites and the
// backend is the arbiter of concurrent overwrite races
// (last-writer-wins, no locking at this layer).
package blobstore

import (
	"context"
	"time"
)

// DefaultContentType is assumed for blobs whose side-channel metadata
// is missing or unreadable.
const DefaultContentType = "application/octet-stream"

// Stat describes a stored blob and its side-channel metadata.
type Stat struct {
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// Store is the blob persistence contract.
//
// Download, Delete and Stat report common.ErrNotFound for absent
// paths; other failures carry common.ErrBackend.
type Store interface {
	// Upload persists data under path, overwriting any previous blob,
	// and records contentType plus the custom metadata map alongside
	// it. It returns a resolvable URL for the blob.
	Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error)

	// Download returns the bytes stored at path.
	Download(ctx context.Context, path string) ([]byte, error)

	// Delete removes the blob and its side-channel metadata.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns size, modification time and metadata for the blob
	// at path. A blob without side-channel metadata degrades to
	// DefaultContentType rather than failing.
	Stat(ctx context.Context, path string) (*Stat, error)

	// URLFor returns the URL a blob at path would have. It does not
	// check existence.
	URLFor(path string) string

	// Backend identifies the implementation ("local", "s3") for the
	// metadata row.
	Backend() string
}
