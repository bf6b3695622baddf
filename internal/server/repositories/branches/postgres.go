package branches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/dbx"
	"github.com/mbelovs/contractvault/internal/server/models"
)

const branchColumns = `id, file_id, name, base_version, head_version, created_by,
		created_at, updated_at, is_active`

const uniqueViolation = "23505"

// PostgresRepository implements branch storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, branch *models.VersionBranch) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO version_branches (`+branchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		branch.ID, branch.FileID, branch.Name, branch.BaseVersion, branch.HeadVersion,
		branch.CreatedBy, branch.CreatedAt, branch.UpdatedAt, branch.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.WrapError(common.ErrConflict,
				fmt.Sprintf("branch %q already exists for file %s", branch.Name, branch.FileID), err)
		}
		return common.WrapError(common.ErrBackend, "create branch", err)
	}
	return nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, fileID, name string) (*models.VersionBranch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM version_branches WHERE file_id = $1 AND name = $2`,
		fileID, name)

	branch, err := scanBranch(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("branch %q of file %s not found", name, fileID))
	}
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (r *PostgresRepository) List(ctx context.Context, fileID string) ([]*models.VersionBranch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+branchColumns+` FROM version_branches WHERE file_id = $1 ORDER BY created_at`,
		fileID)
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "list branches", err)
	}
	defer rows.Close()

	var result []*models.VersionBranch
	for rows.Next() {
		branch, err := scanBranch(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(common.ErrBackend, "iterate branches", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateHead(ctx context.Context, fileID, name string, headVersion int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE version_branches SET head_version = $1, updated_at = $2 WHERE file_id = $3 AND name = $4`,
		headVersion, time.Now().UTC(), fileID, name)
	if err != nil {
		return common.WrapError(common.ErrBackend, "update branch head", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(common.ErrBackend, "rows affected", err)
	}
	if n == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("branch %q of file %s not found", name, fileID))
	}
	return nil
}

func (r *PostgresRepository) DeleteAllForFile(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM version_branches WHERE file_id = $1`, fileID); err != nil {
		return common.WrapError(common.ErrBackend, "delete branches", err)
	}
	return nil
}

func scanBranch(scan func(dest ...any) error) (*models.VersionBranch, error) {
	var branch models.VersionBranch
	err := scan(&branch.ID, &branch.FileID, &branch.Name, &branch.BaseVersion,
		&branch.HeadVersion, &branch.CreatedBy, &branch.CreatedAt, &branch.UpdatedAt,
		&branch.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "scan branch", err)
	}
	return &branch, nil
}
