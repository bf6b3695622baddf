package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mbelovs/contractvault/internal/common"
)

// sidecarSuffix is appended to a blob's path to form the side-channel
// metadata record: {blobPath}.meta holding mime type, custom metadata
// and upload time as a small JSON document.
const sidecarSuffix = ".meta"

type sidecar struct {
	MimeType   string            `json:"mime_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UploadedAt time.Time         `json:"uploaded_at"`
}

// Local stores blobs under a base directory on the local filesystem,
// mirroring the logical path layout (files/, thumbnails/, compressed/,
// versions/, tmp/).
type Local struct {
	base string
}

// NewLocal creates the base directory if needed and returns a
// filesystem-backed store rooted there.
func NewLocal(base string) (*Local, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return &Local{base: abs}, nil
}

func (l *Local) Backend() string { return "local" }

// fullPath maps a logical path onto the base directory, rejecting
// paths that would escape it.
func (l *Local) fullPath(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", common.NewError(common.ErrValidation, fmt.Sprintf("invalid blob path %q", path))
	}
	return filepath.Join(l.base, cleaned), nil
}

func (l *Local) Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o770); err != nil {
		return "", common.WrapError(common.ErrBackend, "create blob directory", err)
	}
	if err := os.WriteFile(full, data, 0o660); err != nil {
		return "", common.WrapError(common.ErrBackend, "write blob", err)
	}

	if contentType == "" {
		contentType = DefaultContentType
	}
	side := sidecar{MimeType: contentType, Metadata: metadata, UploadedAt: time.Now().UTC()}
	raw, err := json.Marshal(side)
	if err != nil {
		return "", common.WrapError(common.ErrBackend, "encode blob metadata", err)
	}
	if err := os.WriteFile(full+sidecarSuffix, raw, 0o660); err != nil {
		return "", common.WrapError(common.ErrBackend, "write blob metadata", err)
	}

	return l.URLFor(path), nil
}

func (l *Local) Download(ctx context.Context, path string) ([]byte, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
	}
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "read blob", err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	full, err := l.fullPath(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
	}
	if err != nil {
		return common.WrapError(common.ErrBackend, "delete blob", err)
	}
	// The sidecar must not outlive the blob; its absence is fine.
	if err := os.Remove(full + sidecarSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.WrapError(common.ErrBackend, "delete blob metadata", err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, common.WrapError(common.ErrBackend, "stat blob", err)
	}
	return true, nil
}

func (l *Local) Stat(ctx context.Context, path string) (*Stat, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
	}
	if err != nil {
		return nil, common.WrapError(common.ErrBackend, "stat blob", err)
	}

	st := &Stat{
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ContentType:  DefaultContentType,
		Metadata:     map[string]string{},
	}

	raw, err := os.ReadFile(full + sidecarSuffix)
	if err != nil {
		// Missing or unreadable sidecar degrades to defaults.
		return st, nil
	}
	var side sidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		return st, nil
	}
	if side.MimeType != "" {
		st.ContentType = side.MimeType
	}
	if side.Metadata != nil {
		st.Metadata = side.Metadata
	}
	return st, nil
}

func (l *Local) URLFor(path string) string {
	full, err := l.fullPath(path)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(full)
}
