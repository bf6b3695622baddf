package repomanager

import (
	"context"
	"database/sql"

	"github.com/mbelovs/contractvault/internal/server/repositories/branches"
	"github.com/mbelovs/contractvault/internal/server/repositories/files"
	"github.com/mbelovs/contractvault/internal/server/repositories/versions"
)

// MemoryRepositoryManager aggregates the in-memory repositories. Used
// by tests and by embedders that do not need durable metadata.
type MemoryRepositoryManager struct {
	files    *files.MemoryRepository
	versions *versions.MemoryRepository
	branches *branches.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		files:    files.NewMemoryRepository(),
		versions: versions.NewMemoryRepository(),
		branches: branches.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *MemoryRepositoryManager) Files() files.Repository {
	return m.files
}

func (m *MemoryRepositoryManager) Versions() versions.Repository {
	return m.versions
}

func (m *MemoryRepositoryManager) Branches() branches.Repository {
	return m.branches
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
