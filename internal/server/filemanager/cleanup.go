package filemanager

import (
	"context"
	"time"
)

// StartCleanup runs the periodic sweep that expires chunked-upload
// sessions idle past the session timeout. It blocks until ctx is
// cancelled, so callers run it in its own goroutine.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepSessions(ctx)
		}
	}
}

// sweepSessions discards sessions whose last chunk is older than the
// timeout, including their temp chunks. The session map is only locked
// per entry, never for the whole sweep.
func (m *Manager) sweepSessions(ctx context.Context) {
	cutoff := time.Now().Add(-m.chunkTimeout)

	m.sessions.Range(func(_, value any) bool {
		m.expireIfStale(ctx, value.(*chunkSession), cutoff)
		return true
	})
}

// expireIfStale clears the session when its last chunk predates cutoff.
// The expiry check and the clear share one critical section: a chunk
// that lands while the sweep is deciding refreshes LastChunkAt under
// the same lock and keeps the session alive.
func (m *Manager) expireIfStale(ctx context.Context, session *chunkSession, cutoff time.Time) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	if !session.info.LastChunkAt.Before(cutoff) {
		return false
	}
	m.log.Info(ctx, "expiring stale upload session",
		"upload_id", session.info.UploadID, "name", session.info.FileName)
	m.clearSession(ctx, session)
	return true
}
