package models

import "time"

// OpType identifies the kind of pending local mutation.
type OpType string

const (
	// OpWrite creates or replaces a document's content.
	OpWrite OpType = "write"
	// OpDelete tombstones a document.
	OpDelete OpType = "delete"
	// OpRename moves a page within the same parent folder.
	OpRename OpType = "rename"
	// OpMove moves a page (and anything nested under it) to a new parent.
	OpMove OpType = "move"
	// OpReorder rewrites the child order manifest of a folder.
	OpReorder OpType = "reorder"
	// OpAttach adds one or more attachment files next to a page.
	OpAttach OpType = "attach"
)

// EntryState is the lifecycle state of an outbox entry.
type EntryState string

const (
	// StateQueued means the entry is waiting for the next push cycle.
	StateQueued EntryState = "queued"
	// StateInflight means a push attempt is currently running. Entries found
	// inflight on startup are requeued: the prior process died mid-attempt.
	StateInflight EntryState = "inflight"
	// StateConflict means the server rejected the entry with a revision
	// mismatch; user resolution is required before anything else happens.
	StateConflict EntryState = "conflict"
	// StateFailed means the retry ceiling was exceeded; the entry is out of
	// the sync rotation until the user retries or discards it.
	StateFailed EntryState = "failed"
)

// Attachment is one file carried by an OpAttach entry.
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// OutboxEntry is a durable, not-yet-synced local mutation. Entries are
// applied to the server in enqueue order per path; coalescing guarantees at
// most one active entry per (path, op) pair.
type OutboxEntry struct {
	// Seq is the bbolt-assigned sequence number; it defines FIFO order and
	// is set by the storage layer on first persist.
	Seq uint64 `json:"seq"`
	// ID is a stable identifier, independent of queue position.
	ID   string `json:"id"`
	Op   OpType `json:"op"`
	Path string `json:"path"`
	// NewPath is set for rename/move operations.
	NewPath string `json:"new_path,omitempty"`
	// Payload is the document content for write/reorder operations.
	Payload []byte `json:"payload,omitempty"`
	// Attachments accumulate across coalesced attach operations.
	Attachments []Attachment `json:"attachments,omitempty"`
	// BaseRevision is the revision the local edit was made against. Zero
	// means the path did not exist locally when the edit was made.
	BaseRevision int64      `json:"base_revision"`
	State        EntryState `json:"state"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	// NextAttemptAt is the earliest time the push cycle may retry the entry
	// after a transport failure (exponential backoff).
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
	// RemoteSnapshot holds the server-side document captured when the entry
	// entered the conflict state.
	RemoteSnapshot *Document `json:"remote_snapshot,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Active reports whether the entry still participates in coalescing, i.e. it
// has not yet reached a terminal or user-owned state.
func (e *OutboxEntry) Active() bool {
	return e.State == StateQueued || e.State == StateInflight
}

// Conflict is the transient record handed to the resolution layer. It exists
// only between conflict detection and the user's decision.
type Conflict struct {
	EntryID          string    `json:"entry_id"`
	Path             string    `json:"path"`
	LocalContent     []byte    `json:"local_content"`
	RemoteContent    []byte    `json:"remote_content"`
	RemoteRevision   int64     `json:"remote_revision"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
	RemoteDeleted    bool      `json:"remote_deleted"`
}
