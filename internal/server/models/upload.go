package models

import "time"

// ChunkUploadSession is the ephemeral state of one resumable upload.
// It lives in the process-wide session map from StartChunkedUpload
// until assembly completes or the cleanup sweep expires it.
type ChunkUploadSession struct {
	UploadID    string
	FileName    string
	MimeType    string
	UploaderID  string
	TotalSize   int64
	ChunkSize   int64
	TotalChunks int

	// NextChunk is the expected-index watermark: max(received index)+1.
	NextChunk int

	StartedAt   time.Time
	LastChunkAt time.Time
}
