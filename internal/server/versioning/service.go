// Package versioning maintains an ordered, linked history of byte
// snapshots per file, with named branches, structural diffs and
// merge-conflict detection. It persists snapshot bytes through the blob
// store and version rows through the repositories; it never touches
// file metadata.
package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/logging"
	"github.com/mbelovs/contractvault/internal/server/blobstore"
	"github.com/mbelovs/contractvault/internal/server/models"
	"github.com/mbelovs/contractvault/internal/server/repositories/branches"
	"github.com/mbelovs/contractvault/internal/server/repositories/versions"
)

// Snapshot carries everything the engine needs to record a new version.
// StoragePath must already point at the persisted bytes; Data is the
// same content in memory and is optional — when present it spares the
// diff pass a blob download.
type Snapshot struct {
	Data        []byte
	StoragePath string
	FileName    string
	Size        int64
	Hash        string
	Author      string
	Comment     string
	Change      models.ChangeType
	Reason      string
}

// Service is the versioning engine. All writes to a file's history are
// serialized through a per-file mutex so version numbers stay gapless
// under concurrent callers.
type Service struct {
	versions    versions.Repository
	branches    branches.Repository
	blobs       blobstore.Store
	log         logging.Logger
	maxVersions int

	locks fileLocks
}

// NewService wires the engine. maxVersions is the retention ceiling per
// file; zero disables pruning.
func NewService(vr versions.Repository, br branches.Repository, blobs blobstore.Store, log logging.Logger, maxVersions int) *Service {
	return &Service{
		versions:    vr,
		branches:    br,
		blobs:       blobs,
		log:         log.With("component", "versioning"),
		maxVersions: maxVersions,
	}
}

// CreateVersion appends a new version to the file's history and makes
// it the active one. The previous active version is deactivated in the
// same repository transaction, so there is no observable window with
// zero or two active versions. Diff logging and retention pruning run
// afterwards and are best-effort: their failure never fails the call.
func (s *Service) CreateVersion(ctx context.Context, fileID string, snap Snapshot) (*models.FileVersion, error) {
	if fileID == "" {
		return nil, common.NewError(common.ErrValidation, "file id is required")
	}
	if snap.StoragePath == "" {
		return nil, common.NewError(common.ErrValidation, "snapshot storage path is required")
	}

	unlock := s.locks.lock(fileID)
	defer unlock()

	prev, err := s.versions.GetActive(ctx, fileID)
	if err != nil && !common.IsNotFound(err) {
		return nil, err
	}

	next := 1
	parent := 0
	change := snap.Change
	if prev != nil {
		next = prev.Version + 1
		parent = prev.Version
		if change == "" {
			change = models.ChangeUpdate
		}
	} else if change == "" {
		change = models.ChangeCreate
	}

	version := &models.FileVersion{
		ID:            uuid.NewString(),
		FileID:        fileID,
		Version:       next,
		FileName:      snap.FileName,
		Size:          snap.Size,
		Hash:          snap.Hash,
		CreatedAt:     time.Now(),
		CreatedBy:     snap.Author,
		Comment:       snap.Comment,
		StoragePath:   snap.StoragePath,
		ParentVersion: parent,
		IsActive:      true,
		ChangeType:    change,
		ChangeReason:  snap.Reason,
	}

	if err := s.versions.CreateAndActivate(ctx, version); err != nil {
		return nil, err
	}

	if prev != nil {
		s.logDiff(ctx, prev, version, snap.Data)
	}
	s.prune(ctx, fileID)

	s.log.Info(ctx, "version created",
		"file_id", fileID, "version", version.Version, "change", string(change))
	return version, nil
}

// GetVersion returns one version of the file by number.
func (s *Service) GetVersion(ctx context.Context, fileID string, number int) (*models.FileVersion, error) {
	return s.versions.Get(ctx, fileID, number)
}

// GetCurrentVersion returns the file's active version.
func (s *Service) GetCurrentVersion(ctx context.Context, fileID string) (*models.FileVersion, error) {
	return s.versions.GetActive(ctx, fileID)
}

// ListVersions returns one page of the file's history, newest first,
// plus the total version count.
func (s *Service) ListVersions(ctx context.Context, fileID string, limit, offset int) ([]*models.FileVersion, int64, error) {
	return s.versions.List(ctx, fileID, limit, offset)
}

// RestoreVersion brings version number's content back as a brand-new
// version. History is append-only: the restored bytes are copied to a
// fresh storage path and recorded with change type Restore, nothing is
// rewritten.
func (s *Service) RestoreVersion(ctx context.Context, fileID string, number int, actor, reason string) (*models.FileVersion, error) {
	target, err := s.versions.Get(ctx, fileID, number)
	if err != nil {
		return nil, err
	}

	data, path, err := s.copySnapshot(ctx, target)
	if err != nil {
		return nil, err
	}

	return s.CreateVersion(ctx, fileID, Snapshot{
		Data:        data,
		StoragePath: path,
		FileName:    target.FileName,
		Size:        target.Size,
		Hash:        target.Hash,
		Author:      actor,
		Comment:     fmt.Sprintf("restored from version %d", number),
		Change:      models.ChangeRestore,
		Reason:      reason,
	})
}

// DeleteVersion removes one inactive version and, when no other version
// references the same storage path, its blob. Deleting the active
// version is refused: restore or create a newer version first.
func (s *Service) DeleteVersion(ctx context.Context, fileID string, number int) error {
	unlock := s.locks.lock(fileID)
	defer unlock()

	target, err := s.versions.Get(ctx, fileID, number)
	if err != nil {
		return err
	}
	if target.IsActive {
		return common.NewError(common.ErrConflict, "cannot delete the active version")
	}

	heads, err := s.branchHeads(ctx, fileID)
	if err != nil {
		return err
	}
	if heads[number] {
		return common.NewError(common.ErrConflict, "cannot delete a branch head version")
	}

	if err := s.versions.Delete(ctx, fileID, number); err != nil {
		return err
	}

	if s.pathReferenced(ctx, fileID, target.StoragePath) {
		s.log.Debug(ctx, "version blob shared, keeping",
			"file_id", fileID, "version", number, "path", target.StoragePath)
		return nil
	}
	if err := s.blobs.Delete(ctx, target.StoragePath); err != nil && !common.IsNotFound(err) {
		s.log.Warn(ctx, "version blob delete failed",
			"file_id", fileID, "version", number, "error", err)
	}
	return nil
}

// CompareVersions downloads both snapshots and summarizes their delta.
func (s *Service) CompareVersions(ctx context.Context, fileID string, a, b int) (*models.VersionDiff, error) {
	va, err := s.versions.Get(ctx, fileID, a)
	if err != nil {
		return nil, err
	}
	vb, err := s.versions.Get(ctx, fileID, b)
	if err != nil {
		return nil, err
	}

	da, err := s.blobs.Download(ctx, va.StoragePath)
	if err != nil {
		return nil, err
	}
	db, err := s.blobs.Download(ctx, vb.StoragePath)
	if err != nil {
		return nil, err
	}
	return computeDiff(da, db), nil
}

// CreateBranch forks a named pointer off an existing version. The head
// starts at the base. A duplicate name for the same file is a conflict.
func (s *Service) CreateBranch(ctx context.Context, fileID, name string, baseVersion int, actor string) (*models.VersionBranch, error) {
	if name == "" {
		return nil, common.NewError(common.ErrValidation, "branch name is required")
	}
	if _, err := s.versions.Get(ctx, fileID, baseVersion); err != nil {
		return nil, err
	}

	now := time.Now()
	branch := &models.VersionBranch{
		ID:          uuid.NewString(),
		FileID:      fileID,
		Name:        name,
		BaseVersion: baseVersion,
		HeadVersion: baseVersion,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "branch created",
		"file_id", fileID, "branch", name, "base_version", baseVersion)
	return branch, nil
}

// ListBranches returns every branch of the file.
func (s *Service) ListBranches(ctx context.Context, fileID string) ([]*models.VersionBranch, error) {
	return s.branches.List(ctx, fileID)
}

// MergeBranch merges the source branch into the target branch. Conflict
// detection compares the two head snapshots: differing file names are a
// metadata conflict, auto-resolved in favor of the source; a content
// similarity below the threshold is a manual conflict that blocks the
// merge and is returned for resolution. On success the source head's
// bytes are adopted as a new version with change type Merge and the
// target head advances to it.
func (s *Service) MergeBranch(ctx context.Context, fileID, source, target, actor, message string) (*models.FileVersion, []models.MergeConflict, error) {
	src, err := s.branches.GetByName(ctx, fileID, source)
	if err != nil {
		return nil, nil, err
	}
	dst, err := s.branches.GetByName(ctx, fileID, target)
	if err != nil {
		return nil, nil, err
	}

	srcHead, err := s.versions.Get(ctx, fileID, src.HeadVersion)
	if err != nil {
		return nil, nil, err
	}
	dstHead, err := s.versions.Get(ctx, fileID, dst.HeadVersion)
	if err != nil {
		return nil, nil, err
	}

	srcData, err := s.blobs.Download(ctx, srcHead.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	dstData, err := s.blobs.Download(ctx, dstHead.StoragePath)
	if err != nil {
		return nil, nil, err
	}

	var conflicts []models.MergeConflict
	if srcHead.FileName != dstHead.FileName {
		conflicts = append(conflicts, models.MergeConflict{
			Type:       "metadata",
			Field:      "fileName",
			Details:    fmt.Sprintf("%q vs %q", srcHead.FileName, dstHead.FileName),
			Resolution: models.ResolutionAutoSource,
		})
	}
	diff := computeDiff(srcData, dstData)
	if diff.Similarity < contentSimilarityThreshold {
		conflicts = append(conflicts, models.MergeConflict{
			Type:       "content",
			Field:      "data",
			Details:    fmt.Sprintf("similarity %.2f below %.2f", diff.Similarity, contentSimilarityThreshold),
			Resolution: models.ResolutionManual,
		})
	}
	for _, c := range conflicts {
		if c.Blocking() {
			return nil, conflicts, common.NewError(common.ErrConflict,
				fmt.Sprintf("merge of %q into %q blocked by %s conflict", source, target, c.Type))
		}
	}

	data, path, err := s.copySnapshot(ctx, srcHead)
	if err != nil {
		return nil, conflicts, err
	}
	merged, err := s.CreateVersion(ctx, fileID, Snapshot{
		Data:        data,
		StoragePath: path,
		FileName:    srcHead.FileName,
		Size:        srcHead.Size,
		Hash:        srcHead.Hash,
		Author:      actor,
		Comment:     message,
		Change:      models.ChangeMerge,
		Reason:      fmt.Sprintf("merge %s into %s", source, target),
	})
	if err != nil {
		return nil, conflicts, err
	}

	if err := s.branches.UpdateHead(ctx, fileID, target, merged.Version); err != nil {
		return nil, conflicts, err
	}

	s.log.Info(ctx, "branches merged",
		"file_id", fileID, "source", source, "target", target, "version", merged.Version)
	return merged, conflicts, nil
}

// DeleteAllVersions removes the file's entire history: every version
// row, every branch and every snapshot blob. Blob deletions are
// best-effort so a half-gone file can still be cleaned up again.
func (s *Service) DeleteAllVersions(ctx context.Context, fileID string) error {
	unlock := s.locks.lock(fileID)
	defer unlock()

	all, err := s.versions.ListAll(ctx, fileID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(all))
	for _, v := range all {
		if seen[v.StoragePath] {
			continue
		}
		seen[v.StoragePath] = true
		if err := s.blobs.Delete(ctx, v.StoragePath); err != nil && !common.IsNotFound(err) {
			s.log.Warn(ctx, "version blob delete failed",
				"file_id", fileID, "version", v.Version, "error", err)
		}
	}

	if err := s.branches.DeleteAllForFile(ctx, fileID); err != nil {
		return err
	}
	return s.versions.DeleteAllForFile(ctx, fileID)
}

// copySnapshot duplicates a version's stored bytes to a fresh path,
// carrying the blob's content type and side-channel metadata along so a
// compressed snapshot stays self-describing.
func (s *Service) copySnapshot(ctx context.Context, v *models.FileVersion) ([]byte, string, error) {
	data, err := s.blobs.Download(ctx, v.StoragePath)
	if err != nil {
		return nil, "", err
	}

	contentType := blobstore.DefaultContentType
	var metadata map[string]string
	if stat, err := s.blobs.Stat(ctx, v.StoragePath); err == nil {
		contentType = stat.ContentType
		metadata = stat.Metadata
	}

	path := fmt.Sprintf("versions/%s/%s", v.FileID, uuid.NewString())
	if _, err := s.blobs.Upload(ctx, path, data, contentType, metadata); err != nil {
		return nil, "", err
	}
	return data, path, nil
}

// logDiff records a structural diff between the previous active version
// and the new one. Observability only: any failure is logged and
// swallowed.
func (s *Service) logDiff(ctx context.Context, prev, next *models.FileVersion, nextData []byte) {
	prevData, err := s.blobs.Download(ctx, prev.StoragePath)
	if err != nil {
		s.log.Warn(ctx, "diff skipped, previous snapshot unreadable",
			"file_id", prev.FileID, "version", prev.Version, "error", err)
		return
	}
	if nextData == nil {
		nextData, err = s.blobs.Download(ctx, next.StoragePath)
		if err != nil {
			s.log.Warn(ctx, "diff skipped, new snapshot unreadable",
				"file_id", next.FileID, "version", next.Version, "error", err)
			return
		}
	}

	diff := computeDiff(prevData, nextData)
	s.log.Debug(ctx, "version diff",
		"file_id", next.FileID,
		"from", prev.Version, "to", next.Version,
		"added", diff.AddedBytes, "removed", diff.RemovedBytes,
		"modified", diff.ModifiedBytes, "similarity", diff.Similarity)
}

// prune enforces the retention ceiling by deleting the oldest inactive
// versions beyond it. Active versions and branch heads survive
// regardless of age. Best-effort: failures are logged, never returned.
func (s *Service) prune(ctx context.Context, fileID string) {
	if s.maxVersions <= 0 {
		return
	}

	all, err := s.versions.ListAll(ctx, fileID)
	if err != nil {
		s.log.Warn(ctx, "retention prune skipped", "file_id", fileID, "error", err)
		return
	}
	excess := len(all) - s.maxVersions
	if excess <= 0 {
		return
	}

	heads, err := s.branchHeads(ctx, fileID)
	if err != nil {
		s.log.Warn(ctx, "retention prune skipped", "file_id", fileID, "error", err)
		return
	}

	for _, v := range all {
		if excess == 0 {
			break
		}
		if v.IsActive || heads[v.Version] {
			continue
		}
		if err := s.versions.Delete(ctx, fileID, v.Version); err != nil {
			s.log.Warn(ctx, "retention prune failed",
				"file_id", fileID, "version", v.Version, "error", err)
			continue
		}
		if !s.pathReferenced(ctx, fileID, v.StoragePath) {
			if err := s.blobs.Delete(ctx, v.StoragePath); err != nil && !common.IsNotFound(err) {
				s.log.Warn(ctx, "pruned blob delete failed",
					"file_id", fileID, "version", v.Version, "error", err)
			}
		}
		excess--
		s.log.Info(ctx, "version pruned", "file_id", fileID, "version", v.Version)
	}
}

// branchHeads returns the set of version numbers some branch points at.
func (s *Service) branchHeads(ctx context.Context, fileID string) (map[int]bool, error) {
	list, err := s.branches.List(ctx, fileID)
	if err != nil {
		return nil, err
	}
	heads := make(map[int]bool, len(list))
	for _, b := range list {
		heads[b.HeadVersion] = true
	}
	return heads, nil
}

// pathReferenced reports whether any remaining version of the file
// still stores its bytes at path. Restores and the initial upload can
// leave several versions sharing one blob.
func (s *Service) pathReferenced(ctx context.Context, fileID, path string) bool {
	all, err := s.versions.ListAll(ctx, fileID)
	if err != nil {
		// Cannot prove the blob is orphaned, keep it.
		return true
	}
	for _, v := range all {
		if v.StoragePath == path {
			return true
		}
	}
	return false
}
