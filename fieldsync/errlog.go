package fieldsync

import (
	"sync"
	"time"
)

// maxSyncErrors bounds the in-memory error history.
const maxSyncErrors = 50

// errorLog is a fixed-capacity FIFO of recent sync failures. When full, the
// oldest entry is evicted.
type errorLog struct {
	mu      sync.Mutex
	nextID  int64
	entries []SyncError
}

func newErrorLog() *errorLog {
	return &errorLog{entries: make([]SyncError, 0, maxSyncErrors)}
}

func (l *errorLog) push(t ErrorType, message, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	e := SyncError{
		ID:        l.nextID,
		Type:      t,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	if len(l.entries) == maxSyncErrors {
		copy(l.entries, l.entries[1:])
		l.entries[maxSyncErrors-1] = e
		return
	}
	l.entries = append(l.entries, e)
}

// snapshot returns a copy of the current entries, oldest first.
func (l *errorLog) snapshot() []SyncError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SyncError, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *errorLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
