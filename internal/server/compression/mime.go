package compression

import "strings"

// incompressible lists MIME types whose payloads are already
// compressed. Attempting to compress them wastes CPU for no gain, so
// Compress short-circuits before touching the data.
var incompressible = map[string]struct{}{
	"image/jpeg":                    {},
	"image/png":                     {},
	"image/gif":                     {},
	"image/webp":                    {},
	"image/avif":                    {},
	"image/heic":                    {},
	"application/zip":               {},
	"application/gzip":              {},
	"application/x-gzip":            {},
	"application/x-7z-compressed":   {},
	"application/x-rar-compressed":  {},
	"application/vnd.rar":           {},
	"application/x-bzip2":           {},
	"application/x-xz":              {},
	"application/zstd":              {},
	"application/x-lz4":             {},
	"application/vnd.ms-cab-compressed": {},
}

// IsCompressible reports whether content of the given MIME type is
// worth feeding to the transform. Video and audio containers are
// always treated as already compressed.
func (e *Engine) IsCompressible(mimeType string) bool {
	mt := normalizeMime(mimeType)
	if strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/") {
		return false
	}
	_, denied := incompressible[mt]
	return !denied
}

// profileFor maps a MIME type onto a default algorithm and level hint.
// Text-like content gets zstd (high ratio); everything else gets LZ4
// (fast, lower ratio). Callers may override via Options.
func profileFor(mimeType string) (Algorithm, int) {
	mt := normalizeMime(mimeType)

	if strings.HasPrefix(mt, "text/") {
		return AlgorithmZstd, 6
	}

	switch mt {
	case "application/json", "application/x-ndjson", "application/ld+json",
		"application/xml", "application/xhtml+xml", "application/rss+xml",
		"application/javascript", "application/x-javascript",
		"application/sql", "application/graphql",
		"image/svg+xml":
		return AlgorithmZstd, 6
	}

	// Documents (PDF, office formats) and arbitrary binary content:
	// fast block compression with modest ratios.
	return AlgorithmLZ4, 0
}

func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	// Strip parameters: "text/plain; charset=utf-8" → "text/plain".
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
