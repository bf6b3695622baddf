package filemanager

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/blobstore"
	"github.com/mbelovs/contractvault/internal/server/models"
)

// chunkSession is the in-process state of one resumable upload. The
// mutex serializes chunk bookkeeping for the session; distinct sessions
// never contend.
type chunkSession struct {
	mu       sync.Mutex
	info     models.ChunkUploadSession
	received map[int]bool

	category models.FileCategory
	tags     []string
	isPublic bool
}

// ChunkUploadRequest opens a resumable upload.
type ChunkUploadRequest struct {
	FileName   string
	TotalSize  int64
	MimeType   string
	UploaderID string
	ChunkSize  int64
	Category   models.FileCategory
	Tags       []string
	IsPublic   bool
}

// ChunkStatus reports a session's progress after a chunk upload. Result
// is set once all chunks arrived and assembly ran.
type ChunkStatus struct {
	UploadID    string
	Received    int
	TotalChunks int
	NextChunk   int
	Completed   bool
	Result      *UploadResult
}

// StartChunkedUpload allocates a session for a large upload split into
// ceil(totalSize/chunkSize) chunks.
func (m *Manager) StartChunkedUpload(ctx context.Context, req ChunkUploadRequest) (*models.ChunkUploadSession, error) {
	if req.TotalSize <= 0 {
		return nil, common.NewError(common.ErrValidation, "total size must be positive")
	}
	if req.TotalSize > m.maxFileSize {
		return nil, common.NewError(common.ErrValidation,
			fmt.Sprintf("total size %d exceeds the %d byte limit", req.TotalSize, m.maxFileSize))
	}
	if req.UploaderID == "" {
		return nil, common.NewError(common.ErrValidation, "uploader id is required")
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = m.chunkSize
	}
	totalChunks := int((req.TotalSize + chunkSize - 1) / chunkSize)

	now := time.Now()
	session := &chunkSession{
		info: models.ChunkUploadSession{
			UploadID:    uuid.NewString(),
			FileName:    req.FileName,
			MimeType:    req.MimeType,
			UploaderID:  req.UploaderID,
			TotalSize:   req.TotalSize,
			ChunkSize:   chunkSize,
			TotalChunks: totalChunks,
			StartedAt:   now,
			LastChunkAt: now,
		},
		received: make(map[int]bool, totalChunks),
		category: req.Category,
		tags:     req.Tags,
		isPublic: req.IsPublic,
	}
	m.sessions.Store(session.info.UploadID, session)

	m.log.Info(ctx, "chunked upload started",
		"upload_id", session.info.UploadID, "name", req.FileName,
		"total_size", req.TotalSize, "chunks", totalChunks)

	info := session.info
	return &info, nil
}

// UploadChunk stores one chunk and advances the session watermark.
// Chunks may arrive in any order; re-uploading an index is idempotent.
// Once every index has been received the chunks are concatenated in
// index order and pushed through the normal upload pipeline, and the
// session is cleared.
func (m *Manager) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*ChunkStatus, error) {
	v, ok := m.sessions.Load(uploadID)
	if !ok {
		return nil, common.NewError(common.ErrNotFound, "upload session not found")
	}
	session := v.(*chunkSession)

	session.mu.Lock()
	defer session.mu.Unlock()

	if index < 0 || index >= session.info.TotalChunks {
		return nil, common.NewError(common.ErrValidation,
			fmt.Sprintf("chunk index %d outside [0, %d)", index, session.info.TotalChunks))
	}

	if !session.received[index] {
		if _, err := m.blobs.Upload(ctx, chunkPath(uploadID, index), data, blobstore.DefaultContentType, nil); err != nil {
			return nil, err
		}
		session.received[index] = true
	}

	if next := index + 1; next > session.info.NextChunk {
		session.info.NextChunk = next
	}
	session.info.LastChunkAt = time.Now()

	status := &ChunkStatus{
		UploadID:    uploadID,
		Received:    len(session.received),
		TotalChunks: session.info.TotalChunks,
		NextChunk:   session.info.NextChunk,
	}
	if len(session.received) < session.info.TotalChunks {
		return status, nil
	}

	result, err := m.assemble(ctx, session)
	if err != nil {
		// The session survives a failed assembly; re-uploading any
		// chunk retries it.
		return nil, err
	}
	m.clearSession(ctx, session)

	status.Completed = true
	status.Result = result
	return status, nil
}

// assemble concatenates the temp chunks in index order and runs the
// result through the upload pipeline.
func (m *Manager) assemble(ctx context.Context, session *chunkSession) (*UploadResult, error) {
	var buf bytes.Buffer
	buf.Grow(int(session.info.TotalSize))
	for i := 0; i < session.info.TotalChunks; i++ {
		part, err := m.blobs.Download(ctx, chunkPath(session.info.UploadID, i))
		if err != nil {
			return nil, err
		}
		buf.Write(part)
	}

	result, err := m.UploadFile(ctx, UploadRequest{
		Data:         buf.Bytes(),
		OriginalName: session.info.FileName,
		MimeType:     session.info.MimeType,
		UploaderID:   session.info.UploaderID,
		Category:     session.category,
		Tags:         session.tags,
		IsPublic:     session.isPublic,
	})
	if err != nil {
		return nil, err
	}

	m.log.Info(ctx, "chunked upload assembled",
		"upload_id", session.info.UploadID, "file_id", result.File.ID,
		"chunks", session.info.TotalChunks)
	return result, nil
}

// clearSession drops the session and its temp chunks.
func (m *Manager) clearSession(ctx context.Context, session *chunkSession) {
	for i := range session.received {
		path := chunkPath(session.info.UploadID, i)
		if err := m.blobs.Delete(ctx, path); err != nil && !common.IsNotFound(err) {
			m.log.Warn(ctx, "temp chunk delete failed", "path", path, "error", err)
		}
	}
	m.sessions.Delete(session.info.UploadID)
}

func chunkPath(uploadID string, index int) string {
	return fmt.Sprintf("tmp/chunks/%s/%05d", uploadID, index)
}
