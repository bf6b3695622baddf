package filemanager

import (
	"strings"

	"github.com/mbelovs/contractvault/internal/server/models"
)

// mimeAllowlist maps each category to the MIME prefixes it accepts. A
// trailing "/" entry matches the whole top-level type. Other accepts
// anything.
var mimeAllowlist = map[models.FileCategory][]string{
	models.CategoryDocument: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument",
		"application/vnd.ms-excel",
		"application/vnd.oasis.opendocument",
		"application/rtf",
		"text/",
	},
	models.CategoryContract: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument",
		"application/vnd.oasis.opendocument",
		"text/",
	},
	models.CategoryTemplate: {
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument",
		"application/vnd.oasis.opendocument",
		"application/json",
		"text/",
	},
	models.CategoryImage:     {"image/"},
	models.CategorySignature: {"image/"},
	models.CategoryAvatar:    {"image/"},
	models.CategoryVideo:     {"video/"},
	models.CategoryAudio:     {"audio/"},
	models.CategoryArchive: {
		"application/zip",
		"application/x-tar",
		"application/gzip",
		"application/x-7z-compressed",
		"application/x-rar-compressed",
		"application/vnd.rar",
	},
}

// categoryAllows reports whether mimeType is acceptable for the
// category.
func categoryAllows(category models.FileCategory, mimeType string) bool {
	allowed, ok := mimeAllowlist[category]
	if !ok {
		// CategoryOther and unknown categories accept anything.
		return true
	}
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(mt, prefix) {
			return true
		}
	}
	return false
}

// compressibleCategory reports whether the upload pipeline should even
// attempt compression for the category. Media and archive categories
// carry already-compressed formats, so the attempt is skipped outright.
func compressibleCategory(category models.FileCategory) bool {
	switch category {
	case models.CategoryImage, models.CategoryVideo, models.CategoryAudio,
		models.CategoryArchive, models.CategorySignature, models.CategoryAvatar:
		return false
	default:
		return true
	}
}

// imageCategory reports whether uploads of the category get a
// thumbnail.
func imageCategory(category models.FileCategory) bool {
	switch category {
	case models.CategoryImage, models.CategorySignature, models.CategoryAvatar:
		return true
	default:
		return false
	}
}
