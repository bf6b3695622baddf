// Package files persists FileMetadata rows, including the hash lookup
// that backs content-addressed deduplication.
package files

import (
	"context"

	"github.com/mbelovs/contractvault/internal/server/models"
)

// Repository is the database contract for file metadata. Lookups
// return common.ErrNotFound when no row matches; other failures carry
// common.ErrBackend.
type Repository interface {
	// Save upserts the metadata row by id.
	Save(ctx context.Context, file *models.FileMetadata) error

	FindByID(ctx context.Context, id string) (*models.FileMetadata, error)

	// FindByHash returns the earliest-uploaded file with the given
	// content hash. Hash equality is treated as content equality.
	FindByHash(ctx context.Context, hash string) (*models.FileMetadata, error)

	Delete(ctx context.Context, id string) error

	// ListByOwner applies the filter and returns one page plus the
	// total match count.
	ListByOwner(ctx context.Context, ownerID string, filter *models.ListFilter) ([]*models.FileMetadata, int64, error)

	IncrementDownloadCount(ctx context.Context, id string) error
}
