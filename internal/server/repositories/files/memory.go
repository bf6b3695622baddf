package files

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/models"
)

// MemoryRepository is an in-memory Repository used by tests and by
// embedders that do not need durable metadata.
type MemoryRepository struct {
	mu    sync.RWMutex
	files map[string]*models.FileMetadata
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[string]*models.FileMetadata)}
}

func (r *MemoryRepository) Save(ctx context.Context, file *models.FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *file
	r.files[file.ID] = &clone
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.FileMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.files[id]
	if !ok {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("file %s not found", id))
	}
	clone := *file
	return &clone, nil
}

func (r *MemoryRepository) FindByHash(ctx context.Context, hash string) (*models.FileMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var earliest *models.FileMetadata
	for _, file := range r.files {
		if file.Hash != hash {
			continue
		}
		if earliest == nil || file.UploadedAt.Before(earliest.UploadedAt) {
			earliest = file
		}
	}
	if earliest == nil {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("file with hash %s not found", hash))
	}
	clone := *earliest
	return &clone, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("file %s not found", id))
	}
	delete(r.files, id)
	return nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string, filter *models.ListFilter) ([]*models.FileMetadata, int64, error) {
	if filter == nil {
		filter = &models.ListFilter{}
	}

	r.mu.RLock()
	var matched []*models.FileMetadata
	for _, file := range r.files {
		if file.OwnerID != ownerID {
			continue
		}
		if filter.Category != "" && file.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(file.OriginalName), strings.ToLower(filter.Search)) {
			continue
		}
		if !hasAllTags(file.Tags, filter.Tags) {
			continue
		}
		clone := *file
		matched = append(matched, &clone)
	}
	r.mu.RUnlock()

	sortFiles(matched, filter.SortBy, filter.SortOrder)

	total := int64(len(matched))

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("file %s not found", id))
	}
	file.DownloadCount++
	return nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortFiles(files []*models.FileMetadata, sortBy, order string) {
	asc := strings.EqualFold(order, "asc")
	less := func(a, b *models.FileMetadata) bool {
		switch sortBy {
		case "name":
			return a.OriginalName < b.OriginalName
		case "size":
			return a.Size < b.Size
		case "downloads":
			return a.DownloadCount < b.DownloadCount
		default:
			return a.UploadedAt.Before(b.UploadedAt)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if asc {
			return less(files[i], files[j])
		}
		return less(files[j], files[i])
	})
}
