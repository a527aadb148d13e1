package fieldsync

import (
	"sort"
	"sync"
	"time"
)

// DownloadItem is one pending targeted download. The download queue is
// in-memory only; it does not survive a restart.
type DownloadItem struct {
	Resource    Resource
	RecordID    string
	Priority    int
	Attempts    int
	LastAttempt time.Time
}

// downloadQueue holds pending downloads deduplicated by (resource, record),
// drained highest-priority first.
type downloadQueue struct {
	mu    sync.Mutex
	items []DownloadItem
}

func newDownloadQueue() *downloadQueue {
	return &downloadQueue{}
}

// add enqueues an item. Re-adding an existing (resource, record) pair only
// raises its priority; attempts are preserved.
func (q *downloadQueue) add(r Resource, recordID string, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].Resource == r && q.items[i].RecordID == recordID {
			if priority > q.items[i].Priority {
				q.items[i].Priority = priority
				q.sortLocked()
			}
			return
		}
	}
	q.items = append(q.items, DownloadItem{Resource: r, RecordID: recordID, Priority: priority})
	q.sortLocked()
}

func (q *downloadQueue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].Priority > q.items[j].Priority
	})
}

// pop removes and returns the highest-priority item.
func (q *downloadQueue) pop() (DownloadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return DownloadItem{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

// requeue puts a failed item back with its attempt count bumped.
func (q *downloadQueue) requeue(it DownloadItem) {
	it.Attempts++
	it.LastAttempt = time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
	q.sortLocked()
}

func (q *downloadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
