package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/dbx"
	"github.com/mbelovs/contractvault/internal/server/models"
)

const fileColumns = `id, original_name, file_name, mime_type, size, hash, owner_id,
		uploaded_at, last_modified, is_public, tags, category, backend,
		storage_path, thumbnail_path, compressed_path, compression_algorithm,
		download_count, scan_status`

// sortColumns whitelists the ListByOwner sort keys.
var sortColumns = map[string]string{
	"uploadedAt": "uploaded_at",
	"name":       "original_name",
	"size":       "size",
	"downloads":  "download_count",
}

// PostgresRepository implements file-metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, file *models.FileMetadata) error {
	tags, err := json.Marshal(file.Tags)
	if err != nil {
		return common.WrapError(common.ErrBackend, "encode tags", err)
	}

	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id)
		DO UPDATE SET
			original_name = EXCLUDED.original_name,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			hash = EXCLUDED.hash,
			last_modified = EXCLUDED.last_modified,
			is_public = EXCLUDED.is_public,
			tags = EXCLUDED.tags,
			category = EXCLUDED.category,
			backend = EXCLUDED.backend,
			storage_path = EXCLUDED.storage_path,
			thumbnail_path = EXCLUDED.thumbnail_path,
			compressed_path = EXCLUDED.compressed_path,
			compression_algorithm = EXCLUDED.compression_algorithm,
			download_count = EXCLUDED.download_count,
			scan_status = EXCLUDED.scan_status
	`
	_, err = r.db.ExecContext(ctx, query,
		file.ID, file.OriginalName, file.FileName, file.MimeType, file.Size, file.Hash,
		file.OwnerID, file.UploadedAt, file.LastModified, file.IsPublic, tags,
		string(file.Category), file.Backend, file.StoragePath, file.ThumbnailPath,
		file.CompressedPath, file.CompressionAlgorithm, file.DownloadCount, string(file.ScanStatus))
	if err != nil {
		return common.WrapError(common.ErrBackend, "save file metadata", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.FileMetadata, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), fmt.Sprintf("file %s", id))
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.FileMetadata, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE hash = $1 ORDER BY uploaded_at LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, hash), fmt.Sprintf("file with hash %s", hash))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return common.WrapError(common.ErrBackend, "delete file metadata", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(common.ErrBackend, "rows affected", err)
	}
	if n == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("file %s not found", id))
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, filter *models.ListFilter) ([]*models.FileMetadata, int64, error) {
	if filter == nil {
		filter = &models.ListFilter{}
	}

	where := []string{"owner_id = $1"}
	args := []any{ownerID}

	if filter.Category != "" {
		args = append(args, string(filter.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("original_name ILIKE $%d", len(args)))
	}
	if len(filter.Tags) > 0 {
		tags, err := json.Marshal(filter.Tags)
		if err != nil {
			return nil, 0, common.WrapError(common.ErrBackend, "encode tags filter", err)
		}
		args = append(args, tags)
		where = append(where, fmt.Sprintf("tags @> $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM files WHERE ` + cond
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, common.WrapError(common.ErrBackend, "count files", err)
	}

	sortCol, ok := sortColumns[filter.SortBy]
	if !ok {
		sortCol = "uploaded_at"
	}
	dir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		dir = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		fileColumns, cond, sortCol, dir, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, common.WrapError(common.ErrBackend, "list files", err)
	}
	defer rows.Close()

	var result []*models.FileMetadata
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, common.WrapError(common.ErrBackend, "list files", err)
	}
	return result, total, nil
}

func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET download_count = download_count + 1 WHERE id = $1`, id)
	if err != nil {
		return common.WrapError(common.ErrBackend, "increment download count", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(common.ErrBackend, "rows affected", err)
	}
	if n == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("file %s not found", id))
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row, what string) (*models.FileMetadata, error) {
	file, err := scanFile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewError(common.ErrNotFound, what+" not found")
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func scanFile(scan func(dest ...any) error) (*models.FileMetadata, error) {
	var (
		file     models.FileMetadata
		tags     []byte
		category string
		status   string
	)
	err := scan(&file.ID, &file.OriginalName, &file.FileName, &file.MimeType, &file.Size,
		&file.Hash, &file.OwnerID, &file.UploadedAt, &file.LastModified, &file.IsPublic,
		&tags, &category, &file.Backend, &file.StoragePath, &file.ThumbnailPath,
		&file.CompressedPath, &file.CompressionAlgorithm, &file.DownloadCount, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "scan file metadata", err)
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &file.Tags); err != nil {
			return nil, common.WrapError(common.ErrBackend, "decode tags", err)
		}
	}
	file.Category = models.FileCategory(category)
	file.ScanStatus = models.ScanStatus(status)
	return &file, nil
}
