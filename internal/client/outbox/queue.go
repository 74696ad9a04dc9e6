// Package outbox implements the durable queue of pending local mutations and
// the coalescing rules that keep at most one active entry per path and
// operation.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/internal/validation"
)

const (
	// DefaultRetryCeiling is the number of transport failures after which an
	// entry leaves the sync rotation.
	DefaultRetryCeiling = 5

	retryBackoffBase = 5 * time.Second
	retryBackoffMax  = 5 * time.Minute
)

// Queue wraps OutboxStorage with the enqueue coalescing rules and the entry
// state machine. All compound read-modify-write operations hold an internal
// mutex, so a Queue is safe for concurrent use.
type Queue struct {
	store        storage.OutboxStorage
	logger       *slog.Logger
	retryCeiling int
	mu           sync.Mutex
}

// NewQueue creates a queue over the given storage. retryCeiling <= 0 selects
// DefaultRetryCeiling.
func NewQueue(logger *slog.Logger, store storage.OutboxStorage, retryCeiling int) *Queue {
	if retryCeiling <= 0 {
		retryCeiling = DefaultRetryCeiling
	}
	return &Queue{
		store:        store,
		logger:       logger,
		retryCeiling: retryCeiling,
	}
}

// EnqueueWrite queues a content write for path. A queued write for the same
// path is replaced in place: only the newest payload survives, and the base
// revision of the original edit is kept so the server still checks against
// the state the user actually saw. A write whose push is already in flight
// is left untouched; the new edit gets its own entry behind it.
func (q *Queue) EnqueueWrite(ctx context.Context, path string, payload []byte, baseRevision int64) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.findQueued(ctx, path, models.OpWrite)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Payload = payload
		if err := q.store.UpdateEntry(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to coalesce write: %w", err)
		}
		q.logger.Debug("coalesced write", "path", path, "entry_id", existing.ID)
		return existing, nil
	}

	entry := q.newEntry(models.OpWrite, path, baseRevision)
	entry.Payload = payload
	if err := q.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue write: %w", err)
	}
	return entry, nil
}

// EnqueueDelete queues a tombstone for path. A queued write for the same
// path is dropped first: its content would be erased by the delete anyway.
func (q *Queue) EnqueueDelete(ctx context.Context, path string, baseRevision int64) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pendingWrite, err := q.findQueued(ctx, path, models.OpWrite)
	if err != nil {
		return nil, err
	}
	if pendingWrite != nil {
		if err := q.store.RemoveEntry(ctx, pendingWrite.ID); err != nil {
			return nil, fmt.Errorf("failed to absorb pending write: %w", err)
		}
		q.logger.Debug("delete absorbed pending write", "path", path, "entry_id", pendingWrite.ID)
	}

	existing, err := q.findQueued(ctx, path, models.OpDelete)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	entry := q.newEntry(models.OpDelete, path, baseRevision)
	if err := q.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue delete: %w", err)
	}
	return entry, nil
}

// EnqueueMove queues a move of oldPath (and everything nested under it) to
// newPath. Paths of all other active entries under the old prefix are
// rewritten so they target their post-move location when pushed.
func (q *Queue) EnqueueMove(ctx context.Context, oldPath, newPath string, baseRevision int64) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		if !validation.IsSubPath(oldPath, e.Path) {
			continue
		}
		e.Path = validation.RebasePath(e.Path, oldPath, newPath)
		if err := q.store.UpdateEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("failed to rewrite entry path: %w", err)
		}
		q.logger.Debug("move rewrote pending entry", "entry_id", e.ID, "path", e.Path)
	}

	op := models.OpMove
	if path.Dir(oldPath) == path.Dir(newPath) {
		op = models.OpRename
	}

	entry := q.newEntry(op, oldPath, baseRevision)
	entry.NewPath = newPath
	if err := q.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue move: %w", err)
	}
	return entry, nil
}

// EnqueueAttach queues attachment files for a page. A pending attach for the
// same path accumulates the new files instead of being replaced: a page can
// gain several attachments before a sync cycle runs.
func (q *Queue) EnqueueAttach(ctx context.Context, path string, attachments []models.Attachment) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.findQueued(ctx, path, models.OpAttach)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Attachments = append(existing.Attachments, attachments...)
		if err := q.store.UpdateEntry(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to accumulate attachments: %w", err)
		}
		return existing, nil
	}

	entry := q.newEntry(models.OpAttach, path, 0)
	entry.Attachments = attachments
	if err := q.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue attach: %w", err)
	}
	return entry, nil
}

// EnqueueReorder queues a rewrite of a folder's child order manifest. Like
// writes, only the newest manifest survives coalescing.
func (q *Queue) EnqueueReorder(ctx context.Context, path string, manifest []byte) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing, err := q.findQueued(ctx, path, models.OpReorder)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Payload = manifest
		if err := q.store.UpdateEntry(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to coalesce reorder: %w", err)
		}
		return existing, nil
	}

	entry := q.newEntry(models.OpReorder, path, 0)
	entry.Payload = manifest
	if err := q.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue reorder: %w", err)
	}
	return entry, nil
}

// DequeueNext returns the oldest entry that is ready to push and marks it
// inflight. Entries in conflict or failed state are skipped, as are queued
// entries still inside their retry backoff window. Returns nil when nothing
// is ready.
func (q *Queue) DequeueNext(ctx context.Context, now time.Time) (*models.OutboxEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	for _, e := range entries {
		if e.State != models.StateQueued {
			continue
		}
		if !e.NextAttemptAt.IsZero() && e.NextAttemptAt.After(now) {
			continue
		}
		e.State = models.StateInflight
		if err := q.store.UpdateEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("failed to mark entry inflight: %w", err)
		}
		return e, nil
	}

	return nil, nil
}

// MarkSucceeded removes a pushed entry from the queue.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	return q.store.RemoveEntry(ctx, id)
}

// MarkFailed records a transport failure. The entry goes back to queued with
// an exponential backoff until the retry ceiling is hit, at which point it
// flips to failed and leaves the sync rotation.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.Attempts++
	entry.LastError = cause.Error()

	if entry.Attempts >= q.retryCeiling {
		entry.State = models.StateFailed
		entry.NextAttemptAt = time.Time{}
		q.logger.Warn("outbox entry exceeded retry ceiling",
			"entry_id", entry.ID, "path", entry.Path, "attempts", entry.Attempts, "error", entry.LastError)
	} else {
		entry.State = models.StateQueued
		entry.NextAttemptAt = now.Add(backoff(entry.Attempts))
	}

	return q.store.UpdateEntry(ctx, entry)
}

// MarkConflict stores the remote snapshot alongside the entry and parks it in
// the conflict state until the user resolves it. The entry is persisted as
// given, so push-side adjustments made before parking (an attachment list
// trimmed to the conflicted file, a move's create leg rewritten into a plain
// write at the target) survive for resolution.
func (q *Queue) MarkConflict(ctx context.Context, entry *models.OutboxEntry, remote *models.Document) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry.State = models.StateConflict
	entry.RemoteSnapshot = remote
	return q.store.UpdateEntry(ctx, entry)
}

// TrimAttachments replaces the attachment list of an entry. The push cycle
// calls it after a partial attach push so only unpushed files remain for the
// next attempt or for conflict resolution.
func (q *Queue) TrimAttachments(ctx context.Context, id string, files []models.Attachment) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.Attachments = files
	return q.store.UpdateEntry(ctx, entry)
}

// RequeueInflight flips any inflight entries back to queued. Called on
// startup: an inflight entry means the previous process died mid-push.
func (q *Queue) RequeueInflight(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	for _, e := range entries {
		if e.State != models.StateInflight {
			continue
		}
		e.State = models.StateQueued
		if err := q.store.UpdateEntry(ctx, e); err != nil {
			return fmt.Errorf("failed to requeue inflight entry: %w", err)
		}
		q.logger.Info("requeued interrupted push", "entry_id", e.ID, "path", e.Path)
	}

	return nil
}

// Retry puts a failed entry back into the sync rotation with a fresh attempt
// counter.
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.State != models.StateFailed {
		return fmt.Errorf("entry %s is not failed (state=%s)", id, entry.State)
	}

	entry.State = models.StateQueued
	entry.Attempts = 0
	entry.LastError = ""
	entry.NextAttemptAt = time.Time{}
	return q.store.UpdateEntry(ctx, entry)
}

// Discard drops an entry regardless of state. Used for stuck failed entries
// the user gives up on.
func (q *Queue) Discard(ctx context.Context, id string) error {
	return q.store.RemoveEntry(ctx, id)
}

// Requeue returns a resolved conflict entry to the queued state with a new
// base revision, clearing the stored remote snapshot. When the resolution
// supplies concrete content the entry becomes a plain conditional write of
// those bytes: whatever op raised the conflict, the remaining work is to put
// the decided content at the conflicted path.
func (q *Queue) Requeue(ctx context.Context, id string, payload []byte, baseRevision int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.Payload = payload
	if payload != nil {
		entry.Op = models.OpWrite
		entry.NewPath = ""
		entry.Attachments = nil
	}
	entry.BaseRevision = baseRevision
	entry.State = models.StateQueued
	entry.Attempts = 0
	entry.LastError = ""
	entry.NextAttemptAt = time.Time{}
	entry.RemoteSnapshot = nil
	return q.store.UpdateEntry(ctx, entry)
}

// Entries returns all entries in FIFO order.
func (q *Queue) Entries(ctx context.Context) ([]*models.OutboxEntry, error) {
	return q.store.ListEntries(ctx)
}

// Get returns an entry by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.OutboxEntry, error) {
	return q.store.GetEntry(ctx, id)
}

// PendingCount returns the number of entries still in the queue, whatever
// their state.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Conflicts returns all entries currently parked in the conflict state.
func (q *Queue) Conflicts(ctx context.Context) ([]*models.OutboxEntry, error) {
	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	var conflicts []*models.OutboxEntry
	for _, e := range entries {
		if e.State == models.StateConflict {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts, nil
}

// findQueued returns the queued entry for (path, op), or nil. Inflight
// entries are never candidates for coalescing: their content is already on
// the wire, and a payload folded onto one would vanish when the running push
// succeeds and removes the entry.
func (q *Queue) findQueued(ctx context.Context, path string, op models.OpType) (*models.OutboxEntry, error) {
	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	for _, e := range entries {
		if e.Path == path && e.Op == op && e.State == models.StateQueued {
			return e, nil
		}
	}
	return nil, nil
}

func (q *Queue) newEntry(op models.OpType, path string, baseRevision int64) *models.OutboxEntry {
	return &models.OutboxEntry{
		ID:           uuid.New().String(),
		Op:           op,
		Path:         path,
		BaseRevision: baseRevision,
		State:        models.StateQueued,
		EnqueuedAt:   time.Now(),
	}
}

// backoff returns the retry delay after the given number of attempts,
// doubling each time up to retryBackoffMax.
func backoff(attempts int) time.Duration {
	d := retryBackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryBackoffMax {
			return retryBackoffMax
		}
	}
	return d
}
