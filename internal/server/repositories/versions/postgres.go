package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/dbx"
	"github.com/mbelovs/contractvault/internal/server/models"
)

const versionColumns = `id, file_id, version_number, file_name, size, hash, created_at,
		created_by, comment, storage_path, parent_version, is_active, change_type, change_reason`

const uniqueViolation = "23505"

// PostgresRepository implements version storage. It holds *sql.DB
// rather than dbx.DBTX because CreateAndActivate opens its own
// transaction.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAndActivate performs the activation swap atomically. The
// UNIQUE (file_id, version_number) constraint turns a lost
// version-number race into common.ErrConflict instead of a duplicate.
func (r *PostgresRepository) CreateAndActivate(ctx context.Context, version *models.FileVersion) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE file_versions SET is_active = false WHERE file_id = $1 AND is_active`,
			version.FileID)
		if err != nil {
			return fmt.Errorf("deactivate previous version: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			version.ID, version.FileID, version.Version, version.FileName, version.Size,
			version.Hash, version.CreatedAt, version.CreatedBy, version.Comment,
			version.StoragePath, version.ParentVersion, version.IsActive,
			string(version.ChangeType), version.ChangeReason)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.WrapError(common.ErrConflict,
				fmt.Sprintf("version %d of file %s already exists", version.Version, version.FileID), err)
		}
		return common.WrapError(common.ErrBackend, "create version", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, fileID string, number int) (*models.FileVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 AND version_number = $2`,
		fileID, number)
	return scanOne(row, fmt.Sprintf("version %d of file %s", number, fileID))
}

func (r *PostgresRepository) GetActive(ctx context.Context, fileID string) (*models.FileVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 AND is_active`,
		fileID)
	return scanOne(row, fmt.Sprintf("active version of file %s", fileID))
}

func (r *PostgresRepository) List(ctx context.Context, fileID string, limit, offset int) ([]*models.FileVersion, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_versions WHERE file_id = $1`, fileID).Scan(&total)
	if err != nil {
		return nil, 0, common.WrapError(common.ErrBackend, "count versions", err)
	}

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions
		 WHERE file_id = $1 ORDER BY version_number DESC LIMIT $2 OFFSET $3`,
		fileID, limit, offset)
	if err != nil {
		return nil, 0, common.WrapError(common.ErrBackend, "list versions", err)
	}
	defer rows.Close()

	result, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context, fileID string) ([]*models.FileVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = $1 ORDER BY version_number`,
		fileID)
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "list versions", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID string, number int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM file_versions WHERE file_id = $1 AND version_number = $2`, fileID, number)
	if err != nil {
		return common.WrapError(common.ErrBackend, "delete version", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(common.ErrBackend, "rows affected", err)
	}
	if n == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("version %d of file %s not found", number, fileID))
	}
	return nil
}

func (r *PostgresRepository) DeleteAllForFile(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_versions WHERE file_id = $1`, fileID); err != nil {
		return common.WrapError(common.ErrBackend, "delete versions", err)
	}
	return nil
}

func scanOne(row *sql.Row, what string) (*models.FileVersion, error) {
	version, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewError(common.ErrNotFound, what+" not found")
	}
	if err != nil {
		return nil, err
	}
	return version, nil
}

func collect(rows *sql.Rows) ([]*models.FileVersion, error) {
	var result []*models.FileVersion
	for rows.Next() {
		version, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, version)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(common.ErrBackend, "iterate versions", err)
	}
	return result, nil
}

func scanVersion(scan func(dest ...any) error) (*models.FileVersion, error) {
	var (
		version    models.FileVersion
		changeType string
	)
	err := scan(&version.ID, &version.FileID, &version.Version, &version.FileName,
		&version.Size, &version.Hash, &version.CreatedAt, &version.CreatedBy,
		&version.Comment, &version.StoragePath, &version.ParentVersion,
		&version.IsActive, &changeType, &version.ChangeReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "scan version", err)
	}
	version.ChangeType = models.ChangeType(changeType)
	return &version, nil
}
