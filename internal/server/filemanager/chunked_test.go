package filemanager

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbelovs/contractvault/internal/common"
	"github.com/mbelovs/contractvault/internal/server/models"
)

func splitChunks(data []byte, size int64) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := int(size)
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func TestChunkedUploadAnyOrder(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	content := bytes.Repeat([]byte("large contract body, clause after clause. "), 300)
	chunkSize := int64(4096)

	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName:   "big.txt",
		TotalSize:  int64(len(content)),
		MimeType:   "text/plain",
		UploaderID: "alice",
		ChunkSize:  chunkSize,
		Category:   models.CategoryDocument,
	})
	require.NoError(t, err)
	chunks := splitChunks(content, chunkSize)
	require.Equal(t, len(chunks), session.TotalChunks)

	// Out of order on purpose: last chunk first must not trigger
	// premature assembly.
	order := []int{session.TotalChunks - 1}
	for i := 0; i < session.TotalChunks-1; i++ {
		order = append(order, i)
	}

	var final *ChunkStatus
	for _, idx := range order {
		status, err := m.UploadChunk(ctx, session.UploadID, idx, chunks[idx])
		require.NoError(t, err)
		final = status
	}

	require.True(t, final.Completed)
	require.NotNil(t, final.Result)
	assert.Equal(t, session.TotalChunks, final.Received)

	dl, err := m.DownloadFile(ctx, final.Result.File.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, content, dl.Data)

	// The session is gone once assembly finished.
	_, err = m.UploadChunk(ctx, session.UploadID, 0, chunks[0])
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestChunkUploadIdempotentPerIndex(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	content := []byte("abcdefghij")
	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "small.txt", TotalSize: int64(len(content)),
		MimeType: "text/plain", UploaderID: "alice", ChunkSize: 4,
	})
	require.NoError(t, err)
	require.Equal(t, 3, session.TotalChunks)

	status, err := m.UploadChunk(ctx, session.UploadID, 1, content[4:8])
	require.NoError(t, err)
	assert.Equal(t, 2, status.NextChunk)
	assert.Equal(t, 1, status.Received)

	// Re-uploading the same index neither regresses the watermark nor
	// double-counts.
	status, err = m.UploadChunk(ctx, session.UploadID, 1, content[4:8])
	require.NoError(t, err)
	assert.Equal(t, 2, status.NextChunk)
	assert.Equal(t, 1, status.Received)

	_, err = m.UploadChunk(ctx, session.UploadID, 0, content[:4])
	require.NoError(t, err)
	final, err := m.UploadChunk(ctx, session.UploadID, 2, content[8:])
	require.NoError(t, err)
	require.True(t, final.Completed)

	dl, err := m.DownloadFile(ctx, final.Result.File.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, content, dl.Data)
}

func TestChunkUploadUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	_, err := m.UploadChunk(context.Background(), "no-such-session", 0, []byte("x"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestChunkIndexOutOfRange(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	ctx := context.Background()

	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "x.txt", TotalSize: 10, MimeType: "text/plain",
		UploaderID: "alice", ChunkSize: 4,
	})
	require.NoError(t, err)

	_, err = m.UploadChunk(ctx, session.UploadID, -1, []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = m.UploadChunk(ctx, session.UploadID, 3, []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestStartChunkedUploadValidation(t *testing.T) {
	m, _, _ := newTestManager(t, Options{MaxFileSize: 100})
	ctx := context.Background()

	_, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "x", TotalSize: 0, UploaderID: "alice",
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "x", TotalSize: 101, UploaderID: "alice",
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "x", TotalSize: 50,
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSweepExpiresStaleSessions(t *testing.T) {
	m, store, _ := newTestManager(t, Options{ChunkSessionTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "stale.txt", TotalSize: 10, MimeType: "text/plain",
		UploaderID: "alice", ChunkSize: 4,
	})
	require.NoError(t, err)
	_, err = m.UploadChunk(ctx, session.UploadID, 0, []byte("abcd"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	m.sweepSessions(ctx)

	_, err = m.UploadChunk(ctx, session.UploadID, 1, []byte("efgh"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	ok, err := store.Exists(ctx, chunkPath(session.UploadID, 0))
	require.NoError(t, err)
	assert.False(t, ok, "temp chunk should be swept")
}

func TestSweepSparesSessionRefreshedAfterCutoff(t *testing.T) {
	m, store, _ := newTestManager(t, Options{ChunkSessionTimeout: time.Hour})
	ctx := context.Background()

	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "resumed.txt", TotalSize: 10, MimeType: "text/plain",
		UploaderID: "alice", ChunkSize: 4,
	})
	require.NoError(t, err)
	_, err = m.UploadChunk(ctx, session.UploadID, 0, []byte("abcd"))
	require.NoError(t, err)

	v, ok := m.sessions.Load(session.UploadID)
	require.True(t, ok)
	cs := v.(*chunkSession)
	cs.mu.Lock()
	cs.info.LastChunkAt = time.Now().Add(-2 * time.Hour)
	cs.mu.Unlock()

	// The sweep computed its cutoff while the session was stale, but a
	// chunk lands before the sweep reaches it. The expiry decision must
	// see the refreshed timestamp, not the stale one first observed.
	cutoff := time.Now().Add(-time.Hour)
	_, err = m.UploadChunk(ctx, session.UploadID, 1, []byte("efgh"))
	require.NoError(t, err)

	assert.False(t, m.expireIfStale(ctx, cs, cutoff))

	// The session and its temp chunks survived; the upload finishes.
	ok, err = store.Exists(ctx, chunkPath(session.UploadID, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	final, err := m.UploadChunk(ctx, session.UploadID, 2, []byte("ij"))
	require.NoError(t, err)
	require.True(t, final.Completed)

	dl, err := m.DownloadFile(ctx, final.Result.File.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefghij"), dl.Data)
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	m, _, _ := newTestManager(t, Options{ChunkSessionTimeout: time.Hour})
	ctx := context.Background()

	session, err := m.StartChunkedUpload(ctx, ChunkUploadRequest{
		FileName: "fresh.txt", TotalSize: 10, MimeType: "text/plain",
		UploaderID: "alice", ChunkSize: 4,
	})
	require.NoError(t, err)

	m.sweepSessions(ctx)

	_, err = m.UploadChunk(ctx, session.UploadID, 0, []byte("abcd"))
	assert.NoError(t, err)
}
