package branches

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/models"
)

// MemoryRepository is an in-memory Repository used by tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	branches map[string][]*models.VersionBranch // fileID → creation order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{branches: make(map[string][]*models.VersionBranch)}
}

func (r *MemoryRepository) Create(ctx context.Context, branch *models.VersionBranch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.branches[branch.FileID] {
		if b.Name == branch.Name {
			return common.NewError(common.ErrConflict,
				fmt.Sprintf("branch %q already exists for file %s", branch.Name, branch.FileID))
		}
	}
	clone := *branch
	r.branches[branch.FileID] = append(r.branches[branch.FileID], &clone)
	return nil
}

func (r *MemoryRepository) GetByName(ctx context.Context, fileID, name string) (*models.VersionBranch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.branches[fileID] {
		if b.Name == name {
			clone := *b
			return &clone, nil
		}
	}
	return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("branch %q of file %s not found", name, fileID))
}

func (r *MemoryRepository) List(ctx context.Context, fileID string) ([]*models.VersionBranch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.branches[fileID]
	result := make([]*models.VersionBranch, 0, len(chain))
	for _, b := range chain {
		clone := *b
		result = append(result, &clone)
	}
	return result, nil
}

func (r *MemoryRepository) UpdateHead(ctx context.Context, fileID, name string, headVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.branches[fileID] {
		if b.Name == name {
			b.HeadVersion = headVersion
			b.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return common.NewError(common.ErrNotFound, fmt.Sprintf("branch %q of file %s not found", name, fileID))
}

func (r *MemoryRepository) DeleteAllForFile(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.branches, fileID)
	return nil
}
