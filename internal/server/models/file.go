// Package models defines the data model persisted by the storage core:
// file metadata, version history, branches and upload-session state.
package models

import "time"

// FileCategory is the coarse classification used for storage-path
// layout, MIME validation and compression decisions.
type FileCategory string

const (
	CategoryDocument  FileCategory = "document"
	CategoryImage     FileCategory = "image"
	CategoryVideo     FileCategory = "video"
	CategoryAudio     FileCategory = "audio"
	CategoryArchive   FileCategory = "archive"
	CategoryContract  FileCategory = "contract"
	CategoryTemplate  FileCategory = "template"
	CategorySignature FileCategory = "signature"
	CategoryAvatar    FileCategory = "avatar"
	CategoryOther     FileCategory = "other"
)

// ScanStatus records the outcome of the virus-scan hook for a file.
type ScanStatus string

const (
	ScanPending    ScanStatus = "pending"
	ScanClean      ScanStatus = "clean"
	ScanInfected   ScanStatus = "infected"
	ScanSuspicious ScanStatus = "suspicious"
	ScanSkipped    ScanStatus = "skipped"
)

// FileMetadata is the persisted record for one logical file.
//
// Hash is the SHA-256 of the original content and acts as the
// deduplication key: it is computed before any compression, so two
// uploads of identical bytes always resolve to the same hash. Size
// describes the stored form at StoragePath, which is the compressed
// form when CompressionAlgorithm is set.
type FileMetadata struct {
	ID           string
	OriginalName string
	FileName     string
	MimeType     string
	Size         int64
	Hash         string
	OwnerID      string
	UploadedAt   time.Time
	LastModified time.Time
	IsPublic     bool
	Tags         []string
	Category     FileCategory

	// Backend identifies the blob-store backend holding the bytes
	// ("local", "s3").
	Backend string

	StoragePath    string
	ThumbnailPath  string
	CompressedPath string

	// CompressionAlgorithm is empty when the stored form is the
	// original bytes.
	CompressionAlgorithm string

	// Versions lists the version numbers recorded for this file in
	// ascending order. It is derived from the version history on load
	// and not written back by the files repository.
	Versions []int

	DownloadCount int64
	ScanStatus    ScanStatus
}

// ListFilter describes the query shape for listing a user's files.
// Execution (filtering, pagination, sorting) is delegated to the
// database collaborator.
type ListFilter struct {
	Category  FileCategory
	Tags      []string
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}
