package files

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleFile() *models.FileMetadata {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.FileMetadata{
		ID:           "f1",
		OriginalName: "contract.pdf",
		FileName:     "abc123_1_.pdf",
		MimeType:     "application/pdf",
		Size:         1024,
		Hash:         "deadbeef",
		OwnerID:      "u1",
		UploadedAt:   now,
		LastModified: now,
		Tags:         []string{"legal"},
		Category:     models.CategoryContract,
		Backend:      "local",
		StoragePath:  "files/contract/abc123_1_.pdf",
		ScanStatus:   models.ScanSkipped,
	}
}

func TestSave_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+files\b.*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE\s+SET\b`

	file := sampleFile()
	mock.ExpectExec(q).
		WithArgs(file.ID, file.OriginalName, file.FileName, file.MimeType, file.Size,
			file.Hash, file.OwnerID, file.UploadedAt, file.LastModified, file.IsPublic,
			[]byte(`["legal"]`), "contract", file.Backend, file.StoragePath, "",
			"", "", int64(0), "skipped").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), file); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSave_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+files`).WillReturnError(errors.New("db down"))

	err := repo.Save(context.Background(), sampleFile())
	if !errors.Is(err, common.ErrBackend) {
		t.Fatalf("want ErrBackend, got %v", err)
	}
}

func fileRows() *sqlmock.Rows {
	f := sampleFile()
	return sqlmock.NewRows([]string{
		"id", "original_name", "file_name", "mime_type", "size", "hash", "owner_id",
		"uploaded_at", "last_modified", "is_public", "tags", "category", "backend",
		"storage_path", "thumbnail_path", "compressed_path", "compression_algorithm",
		"download_count", "scan_status",
	}).AddRow(f.ID, f.OriginalName, f.FileName, f.MimeType, f.Size, f.Hash, f.OwnerID,
		f.UploadedAt, f.LastModified, f.IsPublic, []byte(`["legal"]`), "contract", f.Backend,
		f.StoragePath, "", "", "", int64(2), "skipped")
}

func TestFindByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(fileRows())

	file, err := repo.FindByID(context.Background(), "f1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.ID != "f1" || file.Category != models.CategoryContract || len(file.Tags) != 1 {
		t.Fatalf("unexpected row: %+v", file)
	}
	if file.DownloadCount != 2 {
		t.Fatalf("download count not scanned: %+v", file)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFindByHash_EarliestWins(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+files\s+WHERE\s+hash\s*=\s*\$1\s+ORDER\s+BY\s+uploaded_at\s+LIMIT\s+1`).
		WithArgs("deadbeef").
		WillReturnRows(fileRows())

	file, err := repo.FindByHash(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.Hash != "deadbeef" {
		t.Fatalf("unexpected row: %+v", file)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+files\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestIncrementDownloadCount_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+files\s+SET\s+download_count\s*=\s*download_count\s*\+\s*1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementDownloadCount(context.Background(), "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListByOwner_FiltersAndPagination(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+files\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+category\s*=\s*\$2\s+AND\s+original_name\s+ILIKE\s+\$3`).
		WithArgs("u1", "contract", "%lease%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+files\s+WHERE\s+owner_id\s*=\s*\$1.*ORDER\s+BY\s+original_name\s+ASC\s+LIMIT\s+\$4\s+OFFSET\s+\$5`).
		WithArgs("u1", "contract", "%lease%", 10, 10).
		WillReturnRows(fileRows())

	list, total, err := repo.ListByOwner(context.Background(), "u1", &models.ListFilter{
		Category:  models.CategoryContract,
		Search:    "lease",
		Page:      2,
		Limit:     10,
		SortBy:    "name",
		SortOrder: "asc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("unexpected result: total=%d len=%d", total, len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
