package models

import "time"

// ChangeType classifies what produced a version.
type ChangeType string

const (
	ChangeCreate  ChangeType = "create"
	ChangeUpdate  ChangeType = "update"
	ChangeDelete  ChangeType = "delete"
	ChangeRestore ChangeType = "restore"
	ChangeMerge   ChangeType = "merge"
	ChangeBranch  ChangeType = "branch"
)

// FileVersion is one snapshot in a file's history. Versions form a
// singly-linked chain via ParentVersion; numbers start at 1 and are
// strictly increasing per file. Exactly one version per file carries
// IsActive=true and acts as the file's current pointer.
type FileVersion struct {
	ID            string
	FileID        string
	Version       int
	FileName      string
	Size          int64
	Hash          string
	CreatedAt     time.Time
	CreatedBy     string
	Comment       string
	StoragePath   string
	ParentVersion int // 0 when the version has no parent
	IsActive      bool
	ChangeType    ChangeType
	ChangeReason  string
}

// VersionDiff summarizes the byte-level delta between two snapshots.
//
// ModifiedBytes is the overlap length (the shorter snapshot's size) and
// Similarity is the fraction of byte positions that match within that
// overlap — a cheap O(n) structural proxy, deliberately not a true
// edit-distance diff.
type VersionDiff struct {
	AddedBytes    int64
	RemovedBytes  int64
	ModifiedBytes int64
	TotalChanges  int64
	Similarity    float64
}

// ConflictResolution says how a merge conflict is handled.
type ConflictResolution string

const (
	// ResolutionAutoSource means the conflict is resolved automatically
	// in favor of the source branch.
	ResolutionAutoSource ConflictResolution = "auto-source"

	// ResolutionManual means the conflict blocks the merge and must be
	// resolved by the caller.
	ResolutionManual ConflictResolution = "manual"
)

// MergeConflict describes one conflict found while merging branches.
type MergeConflict struct {
	Type       string // "metadata" or "content"
	Field      string
	Details    string
	Resolution ConflictResolution
}

// Blocking reports whether the conflict prevents the merge.
func (c MergeConflict) Blocking() bool {
	return c.Resolution == ResolutionManual
}
