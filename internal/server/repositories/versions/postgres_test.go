package versions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

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

func sampleVersion() *models.FileVersion {
	return &models.FileVersion{
		ID:            "v1",
		FileID:        "f1",
		Version:       2,
		FileName:      "contract.pdf",
		Size:          512,
		Hash:          "cafebabe",
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CreatedBy:     "u1",
		StoragePath:   "files/contract/v2",
		ParentVersion: 1,
		IsActive:      true,
		ChangeType:    models.ChangeUpdate,
	}
}

func TestCreateAndActivate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVersion()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+file_versions\s+SET\s+is_active\s*=\s*false\s+WHERE\s+file_id\s*=\s*\$1\s+AND\s+is_active`).
		WithArgs(v.FileID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+file_versions\b`).
		WithArgs(v.ID, v.FileID, v.Version, v.FileName, v.Size, v.Hash, v.CreatedAt,
			v.CreatedBy, v.Comment, v.StoragePath, v.ParentVersion, v.IsActive,
			"update", v.ChangeReason).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CreateAndActivate(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAndActivate_NumberRaceIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	v := sampleVersion()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+file_versions\s+SET\s+is_active\s*=\s*false`).
		WithArgs(v.FileID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+file_versions\b`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "file_versions_file_id_version_number_key"})
	mock.ExpectRollback()

	err := repo.CreateAndActivate(context.Background(), v)
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateAndActivate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+file_versions\s+SET\s+is_active\s*=\s*false`).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	err := repo.CreateAndActivate(context.Background(), sampleVersion())
	if !errors.Is(err, common.ErrBackend) {
		t.Fatalf("want ErrBackend, got %v", err)
	}
}

func versionRows() *sqlmock.Rows {
	v := sampleVersion()
	return sqlmock.NewRows([]string{
		"id", "file_id", "version_number", "file_name", "size", "hash", "created_at",
		"created_by", "comment", "storage_path", "parent_version", "is_active",
		"change_type", "change_reason",
	}).AddRow(v.ID, v.FileID, v.Version, v.FileName, v.Size, v.Hash, v.CreatedAt,
		v.CreatedBy, v.Comment, v.StoragePath, v.ParentVersion, v.IsActive,
		"update", v.ChangeReason)
}

func TestGet_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1\s+AND\s+version_number\s*=\s*\$2`).
		WithArgs("f1", 2).
		WillReturnRows(versionRows())

	v, err := repo.Get(context.Background(), "f1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Version != 2 || v.ChangeType != models.ChangeUpdate || !v.IsActive {
		t.Fatalf("unexpected row: %+v", v)
	}
}

func TestGetActive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+.*FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1\s+AND\s+is_active`).
		WithArgs("f1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActive(context.Background(), "f1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestList_NewestFirstWithTotal(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery(`(?s)SELECT\s+.*FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1\s+ORDER\s+BY\s+version_number\s+DESC\s+LIMIT\s+\$2\s+OFFSET\s+\$3`).
		WithArgs("f1", 2, 0).
		WillReturnRows(versionRows())

	list, total, err := repo.List(context.Background(), "f1", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(list) != 1 {
		t.Fatalf("unexpected result: total=%d len=%d", total, len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1\s+AND\s+version_number\s*=\s*\$2`).
		WithArgs("f1", 9).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "f1", 9)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteAllForFile_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+file_versions\s+WHERE\s+file_id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteAllForFile(context.Background(), "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
