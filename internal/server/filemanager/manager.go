// Package filemanager is the public entry point of the storage core. It
// validates uploads, deduplicates by content hash, drives chunked
// uploads, invokes the compression engine and blob store, and records
// every stored snapshot in the version history.
package filemanager

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/hashx"
	"github.com/mbelovs/contractvault/internal/logging"
	"github.com/mbelovs/contractvault/internal/server/blobstore"
	"github.com/mbelovs/contractvault/internal/server/compression"
	"github.com/mbelovs/contractvault/internal/server/models"
	"github.com/mbelovs/contractvault/internal/server/repositories/files"
	"github.com/mbelovs/contractvault/internal/server/versioning"
)

// Blob side-channel metadata keys. The compression tag travels with the
// blob, not the metadata row, so a snapshot stays self-describing even
// when copied by the versioning engine.
const (
	metaKeyHash         = "hash"
	metaKeyCompression  = "compression"
	metaKeyOriginalSize = "original_size"
)

const (
	defaultMaxFileSize  = 100 << 20
	defaultChunkSize    = 5 << 20
	defaultChunkTimeout = 30 * time.Minute
)

// Options tunes the manager. Zero values fall back to the defaults;
// Scanner and Thumbnails are optional collaborators.
type Options struct {
	MaxFileSize         int64
	DefaultChunkSize    int64
	ChunkSessionTimeout time.Duration
	Scanner             VirusScanner
	Thumbnails          ThumbnailRenderer
}

// Manager orchestrates the storage core. The upload-session map is its
// only mutable shared state; everything else is delegated to the
// injected collaborators.
type Manager struct {
	files    files.Repository
	versions *versioning.Service
	blobs    blobstore.Store
	engine   *compression.Engine
	perms    PermissionChecker
	scanner  VirusScanner
	thumbs   ThumbnailRenderer
	log      logging.Logger

	maxFileSize  int64
	chunkSize    int64
	chunkTimeout time.Duration

	sessions sync.Map // uploadID → *chunkSession
}

func NewManager(fr files.Repository, vs *versioning.Service, blobs blobstore.Store, engine *compression.Engine, perms PermissionChecker, log logging.Logger, opts Options) *Manager {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.DefaultChunkSize <= 0 {
		opts.DefaultChunkSize = defaultChunkSize
	}
	if opts.ChunkSessionTimeout <= 0 {
		opts.ChunkSessionTimeout = defaultChunkTimeout
	}
	return &Manager{
		files:        fr,
		versions:     vs,
		blobs:        blobs,
		engine:       engine,
		perms:        perms,
		scanner:      opts.Scanner,
		thumbs:       opts.Thumbnails,
		log:          log.With("component", "filemanager"),
		maxFileSize:  opts.MaxFileSize,
		chunkSize:    opts.DefaultChunkSize,
		chunkTimeout: opts.ChunkSessionTimeout,
	}
}

// UploadRequest describes one upload. Either Data or Reader must be
// set; MimeType is sniffed from content when empty. Force bypasses the
// dedup short-circuit and stores the content again.
type UploadRequest struct {
	Data         []byte
	Reader       io.Reader
	OriginalName string
	MimeType     string
	UploaderID   string
	Category     models.FileCategory
	Tags         []string
	IsPublic     bool
	Force        bool
	Compression  *compression.Options
}

// UploadResult is the outcome of a successful upload, including the
// dedup case where no new bytes were stored.
type UploadResult struct {
	File         *models.FileMetadata
	URL          string
	ThumbnailURL string
	Deduplicated bool
	Warning      string
	Compression  *compression.Result
}

// DownloadResult carries a file's content back to the caller in its
// original, decompressed form.
type DownloadResult struct {
	Data     []byte
	FileName string
	MimeType string
	Version  int
}

// UploadFile runs the upload pipeline: materialize, validate, hash,
// dedup, scan, compress, store, thumbnail, persist metadata, create the
// initial version. A blob-store failure aborts the call before any
// metadata is persisted; a compression failure degrades to storing the
// original bytes.
func (m *Manager) UploadFile(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	data := req.Data
	if data == nil && req.Reader != nil {
		var err error
		data, err = io.ReadAll(req.Reader)
		if err != nil {
			return nil, common.WrapError(common.ErrBackend, "read upload stream", err)
		}
	}
	if len(data) == 0 {
		return nil, common.NewError(common.ErrValidation, "upload is empty")
	}
	if req.UploaderID == "" {
		return nil, common.NewError(common.ErrValidation, "uploader id is required")
	}
	if int64(len(data)) > m.maxFileSize {
		return nil, common.NewError(common.ErrValidation,
			fmt.Sprintf("file size %d exceeds the %d byte limit", len(data), m.maxFileSize))
	}

	category := req.Category
	if category == "" {
		category = models.CategoryOther
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	if !categoryAllows(category, mimeType) {
		return nil, common.NewError(common.ErrValidation,
			fmt.Sprintf("mime type %q is not allowed for category %q", mimeType, category))
	}

	// Content addressing: the hash of the raw bytes is the dedup key,
	// computed before any compression.
	hash := hashx.SumHex(data)
	if !req.Force {
		existing, err := m.files.FindByHash(ctx, hash)
		if err == nil {
			m.log.Info(ctx, "upload deduplicated", "file_id", existing.ID, "hash", hash)
			return &UploadResult{
				File:         existing,
				URL:          m.blobs.URLFor(existing.StoragePath),
				Deduplicated: true,
				Warning:      "identical content is already stored",
			}, nil
		}
		if !common.IsNotFound(err) {
			return nil, err
		}
	}

	scanStatus := models.ScanSkipped
	if m.scanner != nil {
		verdict, err := m.scanner.Scan(ctx, data)
		if err != nil {
			return nil, common.WrapError(common.ErrBackend, "virus scan", err)
		}
		if verdict != VerdictClean {
			return nil, common.NewError(common.ErrIntegrity,
				fmt.Sprintf("virus scan verdict: %s", verdict))
		}
		scanStatus = models.ScanClean
	}

	stored := data
	algorithm := compression.AlgorithmNone
	var compRes *compression.Result
	if compressibleCategory(category) {
		compRes = m.engine.Compress(data, mimeType, req.Compression)
		if compRes.Success {
			stored = compRes.Data
			algorithm = compRes.Algorithm
		} else {
			m.log.Debug(ctx, "storing original bytes", "reason", compRes.Reason)
		}
	}

	now := time.Now()
	fileName := fmt.Sprintf("%s_%d%s", hash[:12], now.UnixNano(), filepath.Ext(req.OriginalName))
	path := fmt.Sprintf("files/%s/%s", category, fileName)
	compressedPath := ""
	if algorithm != compression.AlgorithmNone {
		path = "compressed/" + fileName
		compressedPath = path
	}

	if _, err := m.blobs.Upload(ctx, path, stored, mimeType, blobMetadata(hash, algorithm, len(data))); err != nil {
		return nil, err
	}

	thumbnailPath := ""
	if m.thumbs != nil && imageCategory(category) {
		thumbnailPath = m.storeThumbnail(ctx, data, mimeType, fileName)
	}

	file := &models.FileMetadata{
		ID:                   uuid.NewString(),
		OriginalName:         req.OriginalName,
		FileName:             fileName,
		MimeType:             mimeType,
		Size:                 int64(len(stored)),
		Hash:                 hash,
		OwnerID:              req.UploaderID,
		UploadedAt:           now,
		LastModified:         now,
		IsPublic:             req.IsPublic,
		Tags:                 req.Tags,
		Category:             category,
		Backend:              m.blobs.Backend(),
		StoragePath:          path,
		ThumbnailPath:        thumbnailPath,
		CompressedPath:       compressedPath,
		CompressionAlgorithm: compressionTag(algorithm),
		ScanStatus:           scanStatus,
	}
	if err := m.files.Save(ctx, file); err != nil {
		m.discardBlob(ctx, path)
		if thumbnailPath != "" {
			m.discardBlob(ctx, thumbnailPath)
		}
		return nil, err
	}

	version, err := m.versions.CreateVersion(ctx, file.ID, versioning.Snapshot{
		Data:        stored,
		StoragePath: path,
		FileName:    fileName,
		Size:        int64(len(stored)),
		Hash:        hash,
		Author:      req.UploaderID,
		Comment:     "initial upload",
		Change:      models.ChangeCreate,
	})
	if err != nil {
		if derr := m.files.Delete(ctx, file.ID); derr != nil {
			m.log.Warn(ctx, "metadata rollback failed", "file_id", file.ID, "error", derr)
		}
		m.discardBlob(ctx, path)
		if thumbnailPath != "" {
			m.discardBlob(ctx, thumbnailPath)
		}
		return nil, err
	}
	file.Versions = []int{version.Version}

	m.log.Info(ctx, "file uploaded",
		"file_id", file.ID, "name", req.OriginalName, "size", file.Size,
		"category", string(category), "compression", file.CompressionAlgorithm)

	result := &UploadResult{
		File:        file,
		URL:         m.blobs.URLFor(path),
		Compression: compRes,
	}
	if thumbnailPath != "" {
		result.ThumbnailURL = m.blobs.URLFor(thumbnailPath)
	}
	return result, nil
}

// UploadNewVersion stores a fresh snapshot of an existing file as its
// next version and moves the metadata row to it.
func (m *Manager) UploadNewVersion(ctx context.Context, fileID string, data []byte, actorID, comment string) (*models.FileVersion, error) {
	if len(data) == 0 {
		return nil, common.NewError(common.ErrValidation, "upload is empty")
	}
	if int64(len(data)) > m.maxFileSize {
		return nil, common.NewError(common.ErrValidation,
			fmt.Sprintf("file size %d exceeds the %d byte limit", len(data), m.maxFileSize))
	}

	file, err := m.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !m.perms.Check(ctx, file, actorID, PermissionWrite) {
		return nil, common.NewError(common.ErrAccessDenied, "write permission denied")
	}

	hash := hashx.SumHex(data)
	stored := data
	algorithm := compression.AlgorithmNone
	if compressibleCategory(file.Category) {
		if res := m.engine.Compress(data, file.MimeType, nil); res.Success {
			stored = res.Data
			algorithm = res.Algorithm
		}
	}

	now := time.Now()
	fileName := fmt.Sprintf("%s_%d%s", hash[:12], now.UnixNano(), filepath.Ext(file.OriginalName))
	path := fmt.Sprintf("files/%s/%s", file.Category, fileName)
	compressedPath := ""
	if algorithm != compression.AlgorithmNone {
		path = "compressed/" + fileName
		compressedPath = path
	}

	if _, err := m.blobs.Upload(ctx, path, stored, file.MimeType, blobMetadata(hash, algorithm, len(data))); err != nil {
		return nil, err
	}

	version, err := m.versions.CreateVersion(ctx, fileID, versioning.Snapshot{
		Data:        stored,
		StoragePath: path,
		FileName:    fileName,
		Size:        int64(len(stored)),
		Hash:        hash,
		Author:      actorID,
		Comment:     comment,
		Change:      models.ChangeUpdate,
	})
	if err != nil {
		m.discardBlob(ctx, path)
		return nil, err
	}

	file.FileName = fileName
	file.Size = int64(len(stored))
	file.Hash = hash
	file.LastModified = now
	file.StoragePath = path
	file.CompressedPath = compressedPath
	file.CompressionAlgorithm = compressionTag(algorithm)
	if err := m.files.Save(ctx, file); err != nil {
		// The new version is already active, so downloads resolve the
		// right bytes through it; the metadata row keeps the previous
		// snapshot's size/hash/path until the next successful save.
		m.log.Warn(ctx, "metadata update failed after version activation",
			"file_id", fileID, "version", version.Version, "error", err)
		return nil, err
	}

	m.log.Info(ctx, "file version uploaded",
		"file_id", fileID, "version", version.Version, "size", file.Size)
	return version, nil
}

// DownloadFile returns the file's content in its original form. Version
// zero resolves to the current active version; a positive version reads
// that historical snapshot. The compression tag stored alongside the
// blob decides whether a decompression pass runs.
func (m *Manager) DownloadFile(ctx context.Context, fileID, requesterID string, version int) (*DownloadResult, error) {
	file, err := m.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !m.perms.Check(ctx, file, requesterID, PermissionRead) {
		return nil, common.NewError(common.ErrAccessDenied, "read permission denied")
	}

	path := file.StoragePath
	resolved := 0
	if version > 0 {
		v, err := m.versions.GetVersion(ctx, fileID, version)
		if err != nil {
			return nil, err
		}
		path = v.StoragePath
		resolved = v.Version
	} else if v, err := m.versions.GetCurrentVersion(ctx, fileID); err == nil {
		path = v.StoragePath
		resolved = v.Version
	}

	data, err := m.blobs.Download(ctx, path)
	if err != nil {
		return nil, err
	}

	if algo := m.blobAlgorithm(ctx, path); algo != compression.AlgorithmNone {
		data, err = m.engine.Decompress(data, algo)
		if err != nil {
			return nil, err
		}
	}

	if err := m.files.IncrementDownloadCount(ctx, fileID); err != nil {
		m.log.Warn(ctx, "download counter update failed", "file_id", fileID, "error", err)
	}

	return &DownloadResult{
		Data:     data,
		FileName: file.OriginalName,
		MimeType: file.MimeType,
		Version:  resolved,
	}, nil
}

// DeleteFile removes the file's blobs, version history and metadata
// row. Missing blobs are logged and skipped: the delete is reported
// successful once the metadata row is gone.
func (m *Manager) DeleteFile(ctx context.Context, fileID, requesterID string) error {
	file, err := m.files.FindByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !m.perms.Check(ctx, file, requesterID, PermissionDelete) {
		return common.NewError(common.ErrAccessDenied, "delete permission denied")
	}

	if err := m.versions.DeleteAllVersions(ctx, fileID); err != nil {
		m.log.Warn(ctx, "version cascade failed", "file_id", fileID, "error", err)
	}

	for _, path := range []string{file.StoragePath, file.ThumbnailPath, file.CompressedPath} {
		if path == "" {
			continue
		}
		if err := m.blobs.Delete(ctx, path); err != nil && !common.IsNotFound(err) {
			m.log.Warn(ctx, "blob delete failed", "file_id", fileID, "path", path, "error", err)
		}
	}

	if err := m.files.Delete(ctx, fileID); err != nil {
		return err
	}
	m.log.Info(ctx, "file deleted", "file_id", fileID)
	return nil
}

// ListUserFiles returns one page of the user's files plus the total
// match count. Filtering, sorting and pagination execute in the
// database.
func (m *Manager) ListUserFiles(ctx context.Context, userID string, filter *models.ListFilter) ([]*models.FileMetadata, int64, error) {
	return m.files.ListByOwner(ctx, userID, filter)
}

// GetFile returns the metadata row for one file.
func (m *Manager) GetFile(ctx context.Context, fileID string) (*models.FileMetadata, error) {
	return m.files.FindByID(ctx, fileID)
}

// storeThumbnail renders and stores a preview image. Thumbnails are
// best-effort: any failure is logged and the upload continues without
// one.
func (m *Manager) storeThumbnail(ctx context.Context, data []byte, mimeType, fileName string) string {
	thumb, err := m.thumbs.Render(ctx, data, mimeType)
	if err != nil || len(thumb) == 0 {
		m.log.Warn(ctx, "thumbnail render failed", "error", err)
		return ""
	}
	path := "thumbnails/" + fileName
	if _, err := m.blobs.Upload(ctx, path, thumb, mimeType, nil); err != nil {
		m.log.Warn(ctx, "thumbnail upload failed", "error", err)
		return ""
	}
	return path
}

// blobAlgorithm reads the compression tag from the blob's side-channel
// metadata. A missing sidecar or tag means the stored bytes are the
// original form.
func (m *Manager) blobAlgorithm(ctx context.Context, path string) compression.Algorithm {
	stat, err := m.blobs.Stat(ctx, path)
	if err != nil {
		return compression.AlgorithmNone
	}
	tag := stat.Metadata[metaKeyCompression]
	if tag == "" || tag == string(compression.AlgorithmNone) {
		return compression.AlgorithmNone
	}
	return compression.Algorithm(tag)
}

// discardBlob removes a blob written by a pipeline step that failed
// later on. Rollback only, so failures are merely logged.
func (m *Manager) discardBlob(ctx context.Context, path string) {
	if err := m.blobs.Delete(ctx, path); err != nil && !common.IsNotFound(err) {
		m.log.Warn(ctx, "blob rollback failed", "path", path, "error", err)
	}
}

func blobMetadata(hash string, algorithm compression.Algorithm, originalSize int) map[string]string {
	meta := map[string]string{
		metaKeyHash:         hash,
		metaKeyOriginalSize: strconv.Itoa(originalSize),
	}
	if algorithm != compression.AlgorithmNone {
		meta[metaKeyCompression] = string(algorithm)
	}
	return meta
}

func compressionTag(algorithm compression.Algorithm) string {
	if algorithm == compression.AlgorithmNone {
		return ""
	}
	return string(algorithm)
}
