// Package sync implements the client sync coordinator: the pull/push cycles
// against the vault server, the scheduler that drives them, and the status
// surface the UI reads.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	clientapi "github.com/zimx/zimx-sync/internal/client/api"
	"github.com/zimx/zimx-sync/internal/client/outbox"
	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/internal/validation"
	"github.com/zimx/zimx-sync/pkg/api"
)

//go:generate go tool moq -out repository_mock.go . Repository

// Repository is the conditional-write contract of the vault server as seen by
// the sync core.
type Repository interface {
	Read(ctx context.Context, vault models.VaultContext, path string, tombstones bool) (*models.Document, error)
	Write(ctx context.Context, vault models.VaultContext, path string, content []byte, expected *api.Precondition) (*api.WriteDocumentResponse, error)
	Delete(ctx context.Context, vault models.VaultContext, path string, expected *api.Precondition) (*api.WriteDocumentResponse, error)
	ChangesSince(ctx context.Context, vault models.VaultContext, cursor int64, limit int) (*api.ChangesResponse, error)
}

// DefaultInterval is the scheduler period between automatic sync cycles.
const DefaultInterval = 30 * time.Second

// defaultPageSize is the change feed page size used during pull.
const defaultPageSize = 100

// OrderManifestName is the per-folder document that carries explicit child
// ordering. Reorder operations are pushed as ordinary writes of this path.
const OrderManifestName = ".zimx-order"

// ConflictFunc is invoked when an entry enters the conflict state. The core
// works headless: with no callback attached conflicts simply accumulate until
// resolved.
type ConflictFunc func(models.Conflict)

// Status is the coordinator's externally visible state.
type Status struct {
	PendingCount int       `json:"pending_count"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	LastError    string    `json:"last_error,omitempty"`
	HasConflicts bool      `json:"has_conflicts"`
}

// Coordinator drives periodic pull and push cycles for one vault session.
// All state is scoped to the VaultContext passed at construction, so several
// coordinators for different vaults can run in one process.
type Coordinator struct {
	logger     *slog.Logger
	repo       Repository
	cache      storage.CacheStorage
	queue      *outbox.Queue
	state      storage.SyncStateStorage
	vault      models.VaultContext
	onConflict ConflictFunc

	interval time.Duration
	pageSize int

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// pullMu and pushMu serialize cycles: a trigger that arrives while a
	// cycle runs is dropped, not queued behind it.
	pullMu sync.Mutex
	pushMu sync.Mutex

	statusMu   sync.Mutex
	lastSyncAt time.Time
	lastError  string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval overrides the scheduler period.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithPageSize overrides the pull page size.
func WithPageSize(n int) Option {
	return func(c *Coordinator) { c.pageSize = n }
}

// WithConflictFunc attaches the conflict notification callback.
func WithConflictFunc(fn ConflictFunc) Option {
	return func(c *Coordinator) { c.onConflict = fn }
}

// NewCoordinator creates a coordinator for one vault.
func NewCoordinator(
	logger *slog.Logger,
	vault models.VaultContext,
	repo Repository,
	cache storage.CacheStorage,
	queue *outbox.Queue,
	state storage.SyncStateStorage,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		logger:   logger,
		repo:     repo,
		cache:    cache,
		queue:    queue,
		state:    state,
		vault:    vault,
		interval: DefaultInterval,
		pageSize: defaultPageSize,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start requeues entries interrupted by a previous crash and launches the
// scheduler goroutine. It returns immediately.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.queue.RequeueInflight(ctx); err != nil {
		return fmt.Errorf("failed to requeue inflight entries: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(runCtx)

	c.logger.Info("sync coordinator started", "vault", c.vault.ID, "interval", c.interval)
	return nil
}

// Stop cancels the scheduler and waits for any running cycle to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("sync coordinator stopped", "vault", c.vault.ID)
}

// Trigger requests an ad hoc sync cycle. If one is already pending the call
// is a no-op.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.trigger:
		}

		c.SyncOnce(ctx)
	}
}

// SyncOnce runs one pull followed by one push cycle and records the outcome
// in the status surface.
func (c *Coordinator) SyncOnce(ctx context.Context) {
	var firstErr error

	if err := c.Pull(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("pull cycle failed", "vault", c.vault.ID, "error", err)
		firstErr = err
	}
	if err := c.Push(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("push cycle failed", "vault", c.vault.ID, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	c.statusMu.Lock()
	c.lastSyncAt = time.Now()
	if firstErr != nil {
		c.lastError = firstErr.Error()
	} else {
		c.lastError = ""
	}
	c.statusMu.Unlock()
}

// Status reports the current sync state.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.queue.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}
	conflicts, err := c.queue.Conflicts(ctx)
	if err != nil {
		return Status{}, err
	}

	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	return Status{
		PendingCount: pending,
		LastSyncAt:   c.lastSyncAt,
		LastError:    c.lastError,
		HasConflicts: len(conflicts) > 0,
	}, nil
}

// EnqueueEdit records a local content edit: the cache is updated immediately
// and a write entry joins the outbox. Returns without blocking on network.
func (c *Coordinator) EnqueueEdit(ctx context.Context, docPath string, content []byte) error {
	if err := validation.ValidateDocumentPath(docPath); err != nil {
		return err
	}
	docPath = validation.NormalizePath(docPath)

	baseRevision, cached := c.cachedRevision(ctx, docPath)

	entry := &models.CacheEntry{
		Path:       docPath,
		Content:    content,
		ModifiedAt: time.Now(),
	}
	if cached != nil {
		entry.Revision = cached.Revision
	}
	if err := c.cache.PutCached(ctx, entry); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}

	if _, err := c.queue.EnqueueWrite(ctx, docPath, content, baseRevision); err != nil {
		return err
	}
	return nil
}

// EnqueueDelete records a local delete.
func (c *Coordinator) EnqueueDelete(ctx context.Context, docPath string) error {
	if err := validation.ValidateDocumentPath(docPath); err != nil {
		return err
	}
	docPath = validation.NormalizePath(docPath)

	baseRevision, _ := c.cachedRevision(ctx, docPath)

	if err := c.cache.DeleteCached(ctx, docPath); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}

	if _, err := c.queue.EnqueueDelete(ctx, docPath, baseRevision); err != nil {
		return err
	}
	return nil
}

// EnqueueMove records a local move of oldPath and everything nested under it.
// Cached entries are rewritten to their new location right away.
func (c *Coordinator) EnqueueMove(ctx context.Context, oldPath, newPath string) error {
	if err := validation.ValidateDocumentPath(oldPath); err != nil {
		return err
	}
	if err := validation.ValidateDocumentPath(newPath); err != nil {
		return err
	}
	oldPath = validation.NormalizePath(oldPath)
	newPath = validation.NormalizePath(newPath)

	baseRevision, _ := c.cachedRevision(ctx, oldPath)

	cached, err := c.cache.ListCached(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cache: %w", err)
	}
	for _, e := range cached {
		if !validation.IsSubPath(oldPath, e.Path) {
			continue
		}
		moved := *e
		moved.Path = validation.RebasePath(e.Path, oldPath, newPath)
		if err := c.cache.PutCached(ctx, &moved); err != nil {
			return fmt.Errorf("failed to move cache entry: %w", err)
		}
		if err := c.cache.DeleteCached(ctx, e.Path); err != nil {
			return fmt.Errorf("failed to drop moved cache entry: %w", err)
		}
	}

	if _, err := c.queue.EnqueueMove(ctx, oldPath, newPath, baseRevision); err != nil {
		return err
	}
	return nil
}

// EnqueueAttach records attachment files for a page. They are pushed as
// sibling documents in the page's folder.
func (c *Coordinator) EnqueueAttach(ctx context.Context, docPath string, files []models.Attachment) error {
	if err := validation.ValidateDocumentPath(docPath); err != nil {
		return err
	}
	docPath = validation.NormalizePath(docPath)

	if len(files) == 0 {
		return fmt.Errorf("no attachment files given")
	}

	if _, err := c.queue.EnqueueAttach(ctx, docPath, files); err != nil {
		return err
	}
	return nil
}

// EnqueueReorder records a new explicit child order for a folder. The order
// travels as a write of the folder's order manifest document.
func (c *Coordinator) EnqueueReorder(ctx context.Context, folder string, manifest []byte) error {
	folder = validation.NormalizePath(folder)
	manifestPath := path.Join(folder, OrderManifestName)

	if _, err := c.queue.EnqueueReorder(ctx, manifestPath, manifest); err != nil {
		return err
	}
	return nil
}

// cachedRevision returns the last server-confirmed revision for a path, or 0
// when the path has never been cached (implicit revision of absent paths).
func (c *Coordinator) cachedRevision(ctx context.Context, docPath string) (int64, *models.CacheEntry) {
	cached, err := c.cache.GetCached(ctx, docPath)
	if err != nil {
		return 0, nil
	}
	return cached.Revision, cached
}

// Pull fetches and applies remote changes past the local cursor, one page at
// a time. The cursor only ever advances, and only past fully applied pages,
// so an interrupted pull resumes without gaps or re-application.
func (c *Coordinator) Pull(ctx context.Context) error {
	if !c.pullMu.TryLock() {
		return nil
	}
	defer c.pullMu.Unlock()

	cursor, err := c.state.GetCursor(ctx)
	if err != nil {
		return err
	}

	for {
		resp, err := c.repo.ChangesSince(ctx, c.vault, cursor, c.pageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch changes: %w", err)
		}

		for _, change := range resp.Changes {
			if err := c.applyChange(ctx, change); err != nil {
				return fmt.Errorf("failed to apply change for %s: %w", change.Path, err)
			}
			if change.Revision > cursor {
				cursor = change.Revision
			}
		}

		if err := c.state.SaveCursor(ctx, cursor); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}

		if !resp.HasMore {
			if resp.CurrentRevision > cursor {
				cursor = resp.CurrentRevision
				if err := c.state.SaveCursor(ctx, cursor); err != nil {
					return fmt.Errorf("failed to save cursor: %w", err)
				}
			}
			return nil
		}
	}
}

// applyChange folds one change feed row into the local cache. Paths with a
// pending outbox entry are left alone: the next push will surface the
// divergence as a proper conflict with both contents in hand.
func (c *Coordinator) applyChange(ctx context.Context, change api.Change) error {
	pending, err := c.hasPendingEntry(ctx, change.Path)
	if err != nil {
		return err
	}
	if pending {
		c.logger.Debug("skipping remote change for dirty path", "path", change.Path, "revision", change.Revision)
		return nil
	}

	if change.Deleted {
		return c.cache.DeleteCached(ctx, change.Path)
	}

	doc, err := c.repo.Read(ctx, c.vault, change.Path, true)
	if err != nil {
		var notFound *clientapi.NotFoundError
		if errors.As(err, &notFound) {
			// Deleted again between the feed page and this read; a later
			// change row will carry the tombstone.
			return nil
		}
		return err
	}
	if doc.Deleted {
		return c.cache.DeleteCached(ctx, change.Path)
	}

	return c.cache.PutCached(ctx, &models.CacheEntry{
		Path:       doc.Path,
		Content:    doc.Content,
		Revision:   doc.Revision,
		ModifiedAt: doc.ModifiedAt,
	})
}

func (c *Coordinator) hasPendingEntry(ctx context.Context, docPath string) (bool, error) {
	entries, err := c.queue.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Path == docPath || e.NewPath == docPath {
			return true, nil
		}
		// A pending move makes both its old and new subtree dirty: nested
		// entries were already rewritten to the new prefix, so a remote
		// change under either prefix must wait for the move to push.
		if e.NewPath != "" && (validation.IsSubPath(e.Path, docPath) || validation.IsSubPath(e.NewPath, docPath)) {
			return true, nil
		}
	}
	return false, nil
}

// Push drains ready outbox entries in FIFO order. It stops early on a
// transport failure (the server is likely unreachable) but continues past
// conflicts, which only park the affected entry.
func (c *Coordinator) Push(ctx context.Context) error {
	if !c.pushMu.TryLock() {
		return nil
	}
	defer c.pushMu.Unlock()

	for {
		entry, err := c.queue.DequeueNext(ctx, time.Now())
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		// Conflicts are handled inside pushEntry (the entry is parked, not
		// failed); any error surfacing here is a transport or storage fault.
		if err := c.pushEntry(ctx, entry); err != nil {
			if markErr := c.queue.MarkFailed(ctx, entry.ID, err, time.Now()); markErr != nil {
				return markErr
			}
			return fmt.Errorf("push of %s failed: %w", entry.Path, err)
		}
	}
}

// pushEntry applies one outbox entry to the repository.
func (c *Coordinator) pushEntry(ctx context.Context, entry *models.OutboxEntry) error {
	switch entry.Op {
	case models.OpWrite, models.OpReorder:
		return c.pushWrite(ctx, entry)
	case models.OpDelete:
		return c.pushDelete(ctx, entry)
	case models.OpRename, models.OpMove:
		return c.pushMove(ctx, entry)
	case models.OpAttach:
		return c.pushAttach(ctx, entry)
	default:
		// Unknown op cannot succeed on retry either; drop it.
		c.logger.Error("dropping outbox entry with unknown op", "entry_id", entry.ID, "op", entry.Op)
		return c.queue.MarkSucceeded(ctx, entry.ID)
	}
}

func (c *Coordinator) pushWrite(ctx context.Context, entry *models.OutboxEntry) error {
	expected := api.ExpectRevision(entry.BaseRevision)
	if entry.Op == models.OpReorder {
		// Order manifests are last-writer-wins; no precondition.
		expected = nil
	}

	resp, err := c.repo.Write(ctx, c.vault, entry.Path, entry.Payload, expected)
	if err != nil {
		var conflict *clientapi.ConflictError
		if errors.As(err, &conflict) {
			return c.handleConflict(ctx, entry, conflict.Remote)
		}
		return err
	}

	if err := c.cache.PutCached(ctx, &models.CacheEntry{
		Path:       entry.Path,
		Content:    entry.Payload,
		Revision:   resp.Revision,
		ModifiedAt: time.Unix(0, resp.ModifiedAt),
	}); err != nil {
		return err
	}

	c.logger.Info("pushed write", "path", entry.Path, "revision", resp.Revision)
	return c.queue.MarkSucceeded(ctx, entry.ID)
}

func (c *Coordinator) pushDelete(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := c.repo.Delete(ctx, c.vault, entry.Path, api.ExpectRevision(entry.BaseRevision))
	if err != nil {
		var notFound *clientapi.NotFoundError
		if errors.As(err, &notFound) {
			// Never existed or already gone; the delete is moot.
			return c.queue.MarkSucceeded(ctx, entry.ID)
		}
		var conflict *clientapi.ConflictError
		if errors.As(err, &conflict) {
			if conflict.Remote.Deleted {
				// Someone else already deleted it; outcome matches intent.
				return c.queue.MarkSucceeded(ctx, entry.ID)
			}
			return c.handleConflict(ctx, entry, conflict.Remote)
		}
		return err
	}

	if err := c.cache.DeleteCached(ctx, entry.Path); err != nil {
		return err
	}

	c.logger.Info("pushed delete", "path", entry.Path)
	return c.queue.MarkSucceeded(ctx, entry.ID)
}

// pushMove applies a move as delete(old) + create(new). Revision continuity
// is not preserved across the move; the feed shows a tombstone and a fresh
// document.
func (c *Coordinator) pushMove(ctx context.Context, entry *models.OutboxEntry) error {
	cached, err := c.cache.GetCached(ctx, entry.NewPath)
	if err != nil {
		if errors.Is(err, storage.ErrCacheMiss) {
			// Content vanished locally after the move was queued; nothing
			// left to create, the delete leg still applies.
			cached = nil
		} else {
			return err
		}
	}

	if _, err := c.repo.Delete(ctx, c.vault, entry.Path, api.ExpectRevision(entry.BaseRevision)); err != nil {
		var notFound *clientapi.NotFoundError
		var conflict *clientapi.ConflictError
		switch {
		case errors.As(err, &notFound):
			// Old path never reached the server; only the create leg matters.
		case errors.As(err, &conflict):
			if !conflict.Remote.Deleted {
				return c.handleConflict(ctx, entry, conflict.Remote)
			}
		default:
			return err
		}
	}

	if cached != nil {
		resp, err := c.repo.Write(ctx, c.vault, entry.NewPath, cached.Content, api.ExpectRevision(0))
		if err != nil {
			var conflict *clientapi.ConflictError
			if errors.As(err, &conflict) {
				return c.handleMoveTargetConflict(ctx, entry, cached.Content, conflict.Remote)
			}
			return err
		}

		if err := c.cache.PutCached(ctx, &models.CacheEntry{
			Path:       entry.NewPath,
			Content:    cached.Content,
			Revision:   resp.Revision,
			ModifiedAt: time.Unix(0, resp.ModifiedAt),
		}); err != nil {
			return err
		}
	}

	c.logger.Info("pushed move", "from", entry.Path, "to", entry.NewPath)
	return c.queue.MarkSucceeded(ctx, entry.ID)
}

// handleMoveTargetConflict deals with the create leg of a move finding the
// target path already occupied on the server.
func (c *Coordinator) handleMoveTargetConflict(ctx context.Context, entry *models.OutboxEntry, content []byte, remote *models.Document) error {
	if !remote.Deleted && bytes.Equal(content, remote.Content) {
		// Same bytes already there; adopt the server copy.
		if err := c.cache.PutCached(ctx, &models.CacheEntry{
			Path:       remote.Path,
			Content:    remote.Content,
			Revision:   remote.Revision,
			ModifiedAt: remote.ModifiedAt,
		}); err != nil {
			return err
		}
		return c.queue.MarkSucceeded(ctx, entry.ID)
	}

	if remote.Deleted {
		// Target is a tombstone; retry the create against its revision.
		resp, err := c.repo.Write(ctx, c.vault, entry.NewPath, content, api.ExpectRevision(remote.Revision))
		if err == nil {
			if err := c.cache.PutCached(ctx, &models.CacheEntry{
				Path:       entry.NewPath,
				Content:    content,
				Revision:   resp.Revision,
				ModifiedAt: time.Unix(0, resp.ModifiedAt),
			}); err != nil {
				return err
			}
			return c.queue.MarkSucceeded(ctx, entry.ID)
		}
		var conflict *clientapi.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		remote = conflict.Remote
	}

	// The delete leg is done by now; what remains of the move is a write at
	// the target. Park it as one so resolution requeues a conditional write
	// keyed to the revision the user saw.
	entry.Op = models.OpWrite
	entry.Path = entry.NewPath
	entry.NewPath = ""
	entry.Payload = content
	return c.markConflict(ctx, entry, content, remote)
}

// pushAttach writes each attachment as a sibling document in the page's
// folder. Files are expected to be new; an occupied path with different bytes
// parks the entry as a conflict.
func (c *Coordinator) pushAttach(ctx context.Context, entry *models.OutboxEntry) error {
	dir := path.Dir(entry.Path)

	for i, file := range entry.Attachments {
		target := path.Join(dir, file.Name)

		resp, err := c.repo.Write(ctx, c.vault, target, file.Data, api.ExpectRevision(0))
		if err != nil {
			var conflict *clientapi.ConflictError
			if errors.As(err, &conflict) {
				if !conflict.Remote.Deleted && bytes.Equal(file.Data, conflict.Remote.Content) {
					continue
				}
				// Files after the conflicted one keep syncing on their own
				// entry; the conflicted file itself parks as a plain write
				// conflict at its target path, so every resolution choice
				// works on it like on any other write.
				if tail := entry.Attachments[i+1:]; len(tail) > 0 {
					if _, err := c.queue.EnqueueAttach(ctx, entry.Path, tail); err != nil {
						return err
					}
				}
				entry.Op = models.OpWrite
				entry.Path = target
				entry.Payload = file.Data
				entry.Attachments = nil
				return c.markConflict(ctx, entry, file.Data, conflict.Remote)
			}
			if i > 0 {
				if trimErr := c.queue.TrimAttachments(ctx, entry.ID, entry.Attachments[i:]); trimErr != nil {
					return trimErr
				}
			}
			return err
		}

		if err := c.cache.PutCached(ctx, &models.CacheEntry{
			Path:       target,
			Content:    file.Data,
			Revision:   resp.Revision,
			ModifiedAt: time.Unix(0, resp.ModifiedAt),
		}); err != nil {
			return err
		}
	}

	c.logger.Info("pushed attachments", "page", entry.Path, "count", len(entry.Attachments))
	return c.queue.MarkSucceeded(ctx, entry.ID)
}

// handleConflict processes a 409 on the entry's own path. Byte-identical
// content auto-resolves: both sides already agree, so the server copy is
// adopted and the entry cleared without user involvement.
func (c *Coordinator) handleConflict(ctx context.Context, entry *models.OutboxEntry, remote *models.Document) error {
	if entry.Op == models.OpWrite && !remote.Deleted && bytes.Equal(entry.Payload, remote.Content) {
		c.logger.Info("conflict auto-resolved, contents identical", "path", entry.Path, "revision", remote.Revision)
		if err := c.cache.PutCached(ctx, &models.CacheEntry{
			Path:       remote.Path,
			Content:    remote.Content,
			Revision:   remote.Revision,
			ModifiedAt: remote.ModifiedAt,
		}); err != nil {
			return err
		}
		return c.queue.MarkSucceeded(ctx, entry.ID)
	}

	return c.markConflict(ctx, entry, entry.Payload, remote)
}

func (c *Coordinator) markConflict(ctx context.Context, entry *models.OutboxEntry, local []byte, remote *models.Document) error {
	if err := c.queue.MarkConflict(ctx, entry, remote); err != nil {
		return err
	}

	c.logger.Warn("conflict detected", "path", entry.Path, "remote_revision", remote.Revision)

	if c.onConflict != nil {
		c.onConflict(models.Conflict{
			EntryID:          entry.ID,
			Path:             entry.Path,
			LocalContent:     local,
			RemoteContent:    remote.Content,
			RemoteRevision:   remote.Revision,
			RemoteModifiedAt: remote.ModifiedAt,
			RemoteDeleted:    remote.Deleted,
		})
	}
	return nil
}
