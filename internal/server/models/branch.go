package models

import "time"

// VersionBranch is a named, independently advanceable pointer into a
// file's version history. Names are unique within a file; HeadVersion
// is always >= BaseVersion and advances only via merge or an explicit
// head update.
type VersionBranch struct {
	ID          string
	FileID      string
	Name        string
	BaseVersion int
	HeadVersion int
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsActive    bool
}
