// Package repomanager aggregates the repositories behind a single
// injectable interface so that the composition root wires one object
// instead of three.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/mbelovs/contractvault/internal/server/repositories/branches"
	"github.com/mbelovs/contractvault/internal/server/repositories/files"
	"github.com/mbelovs/contractvault/internal/server/repositories/versions"
)

// RepositoryManager hands out the repositories and owns the database
// connection lifecycle.
type RepositoryManager interface {
	Conn() *sql.DB
	Files() files.Repository
	Versions() versions.Repository
	Branches() branches.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
