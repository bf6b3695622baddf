package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/models"
)

// MemoryRepository is an in-memory Repository with the same activation
// and conflict semantics as the Postgres implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	versions map[string][]*models.FileVersion // fileID → ascending by number
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string][]*models.FileVersion)}
}

func (r *MemoryRepository) CreateAndActivate(ctx context.Context, version *models.FileVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[version.FileID]
	for _, v := range chain {
		if v.Version == version.Version {
			return common.NewError(common.ErrConflict,
				fmt.Sprintf("version %d of file %s already exists", version.Version, version.FileID))
		}
	}
	for _, v := range chain {
		v.IsActive = false
	}

	clone := *version
	chain = append(chain, &clone)
	sort.Slice(chain, func(i, j int) bool { return chain[i].Version < chain[j].Version })
	r.versions[version.FileID] = chain
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, fileID string, number int) (*models.FileVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[fileID] {
		if v.Version == number {
			clone := *v
			return &clone, nil
		}
	}
	return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("version %d of file %s not found", number, fileID))
}

func (r *MemoryRepository) GetActive(ctx context.Context, fileID string) (*models.FileVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[fileID] {
		if v.IsActive {
			clone := *v
			return &clone, nil
		}
	}
	return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("active version of file %s not found", fileID))
}

func (r *MemoryRepository) List(ctx context.Context, fileID string, limit, offset int) ([]*models.FileVersion, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := r.versions[fileID]
	total := int64(len(chain))

	if limit <= 0 {
		limit = 20
	}

	// Newest first.
	var result []*models.FileVersion
	for i := len(chain) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		clone := *chain[i]
		result = append(result, &clone)
	}
	return result, total, nil
}

func (r *MemoryRepository) ListAll(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.versions[fileID]
	result := make([]*models.FileVersion, 0, len(chain))
	for _, v := range chain {
		clone := *v
		result = append(result, &clone)
	}
	return result, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, fileID string, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.versions[fileID]
	for i, v := range chain {
		if v.Version == number {
			r.versions[fileID] = append(chain[:i:i], chain[i+1:]...)
			return nil
		}
	}
	return common.NewError(common.ErrNotFound, fmt.Sprintf("version %d of file %s not found", number, fileID))
}

func (r *MemoryRepository) DeleteAllForFile(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.versions, fileID)
	return nil
}
