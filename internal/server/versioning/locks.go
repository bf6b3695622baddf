package versioning

import "sync"

// fileLocks serializes version-number allocation per file id. This is
// the one correctness-critical lock boundary in the subsystem: two
// writers racing to create version N+1 of the same file must be
// ordered. Entries are never evicted; one mutex per file id seen by
// this process is an acceptable cost.
type fileLocks struct {
	locks sync.Map // fileID → *sync.Mutex
}

func (l *fileLocks) lock(fileID string) func() {
	v, _ := l.locks.LoadOrStore(fileID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
