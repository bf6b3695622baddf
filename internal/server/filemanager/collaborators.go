package filemanager

import (
	"context"

	"github.com/mbelovs/contractvault/internal/server/models"
)

// Permission is one of the rights checked before a file operation.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
	PermissionShare  Permission = "share"
)

// PermissionChecker decides whether a user may perform an operation on
// a file. The metadata row is passed in so implementations do not need
// their own lookup.
type PermissionChecker interface {
	Check(ctx context.Context, file *models.FileMetadata, userID string, perm Permission) bool
}

// ScanVerdict is the outcome of a virus scan.
type ScanVerdict string

const (
	VerdictClean      ScanVerdict = "clean"
	VerdictInfected   ScanVerdict = "infected"
	VerdictSuspicious ScanVerdict = "suspicious"
)

// VirusScanner is the external scanning collaborator. A nil scanner
// means scanning is disabled and uploads record ScanSkipped.
type VirusScanner interface {
	Scan(ctx context.Context, data []byte) (ScanVerdict, error)
}

// ThumbnailRenderer produces a small preview image for image-like
// uploads. Returning an error or empty bytes skips the thumbnail
// without failing the upload.
type ThumbnailRenderer interface {
	Render(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// OwnerPermissions is the default checker: the owner may do anything,
// everyone may read public files. Deployments with real sharing
// semantics inject their own checker.
type OwnerPermissions struct{}

func (OwnerPermissions) Check(ctx context.Context, file *models.FileMetadata, userID string, perm Permission) bool {
	if file.OwnerID == userID {
		return true
	}
	return perm == PermissionRead && file.IsPublic
}
