package fieldsync

import (
	"encoding/json"
	"time"
)

// Operation is a queued local mutation awaiting upload.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// QueueEntry is one row of the durable sync queue. Entries are appended by
// UI mutation paths and consumed by the synchronizer in FIFO order.
type QueueEntry struct {
	ID        int64
	Operation Operation
	Resource  Resource
	RecordID  string
	Data      json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// Payload decodes the entry's data column into its typed form.
// DELETE entries carry no payload and decode to nil.
func (e QueueEntry) Payload() (Payload, error) {
	return decodePayload(e.Resource, e.Data)
}
