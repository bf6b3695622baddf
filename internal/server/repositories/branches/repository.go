// Package branches persists VersionBranch rows: named pointers into a
// file's version history. Branch names are unique per file.
package branches

import (
	"context"

	"github.com/mbelovs/contractvault/internal/server/models"
)

// Repository is the database contract for branches. Creating a branch
// whose name already exists for the file returns common.ErrConflict;
// lookups return common.ErrNotFound when absent.
type Repository interface {
	Create(ctx context.Context, branch *models.VersionBranch) error

	GetByName(ctx context.Context, fileID, name string) (*models.VersionBranch, error)

	List(ctx context.Context, fileID string) ([]*models.VersionBranch, error)

	// UpdateHead advances the branch head and refreshes UpdatedAt.
	UpdateHead(ctx context.Context, fileID, name string, headVersion int) error

	DeleteAllForFile(ctx context.Context, fileID string) error
}
