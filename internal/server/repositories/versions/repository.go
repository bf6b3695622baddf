// Package versions persists FileVersion rows. The repository owns the
// one correctness-critical write in the subsystem: activating a new
// version and deactivating the previous one must be a single atomic
// transition, with no observable window where zero or two versions of
// a file are active.
package versions

import (
	"context"

	"github.com/mbelovs/contractvault/internal/server/models"
)

// Repository is the database contract for version history. Lookups
// return common.ErrNotFound when absent; a version-number collision
// (two writers racing for the same number) surfaces as
// common.ErrConflict.
type Repository interface {
	// CreateAndActivate inserts the version with IsActive=true and
	// deactivates the file's previous active version in the same
	// logical transaction.
	CreateAndActivate(ctx context.Context, version *models.FileVersion) error

	Get(ctx context.Context, fileID string, number int) (*models.FileVersion, error)

	GetActive(ctx context.Context, fileID string) (*models.FileVersion, error)

	// List returns one page of versions, newest first, plus the total
	// count for the file.
	List(ctx context.Context, fileID string, limit, offset int) ([]*models.FileVersion, int64, error)

	// ListAll returns every version of the file in ascending version
	// order. Used by retention pruning and delete cascades.
	ListAll(ctx context.Context, fileID string) ([]*models.FileVersion, error)

	Delete(ctx context.Context, fileID string, number int) error

	DeleteAllForFile(ctx context.Context, fileID string) error
}
