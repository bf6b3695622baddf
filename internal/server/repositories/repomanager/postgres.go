package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mbelovs/contractvault/internal/server/migrations"
	"github.com/mbelovs/contractvault/internal/server/repositories/branches"
	"github.com/mbelovs/contractvault/internal/server/repositories/files"
	"github.com/mbelovs/contractvault/internal/server/repositories/versions"
)

// PostgresRepositoryManager wires the Postgres repositories over one
// *sql.DB opened with the pgx stdlib driver.
type PostgresRepositoryManager struct {
	db       *sql.DB
	files    files.Repository
	versions versions.Repository
	branches branches.Repository
}

func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:       db,
		files:    files.NewPostgresRepository(db),
		versions: versions.NewPostgresRepository(db),
		branches: branches.NewPostgresRepository(db),
	}

	if err := m.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Files() files.Repository {
	return m.files
}

func (m *PostgresRepositoryManager) Versions() versions.Repository {
	return m.versions
}

func (m *PostgresRepositoryManager) Branches() branches.Repository {
	return m.branches
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}

	return nil
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
