// Package resolve implements the conflict resolution contract: given a
// parked outbox entry and the remote snapshot captured with it, apply one of
// keep-local, keep-remote or manual merge.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zimx/zimx-sync/internal/client/outbox"
	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
)

// Resolver applies user decisions to conflicted outbox entries.
type Resolver struct {
	logger *slog.Logger
	queue  *outbox.Queue
	cache  storage.CacheStorage
}

// NewResolver creates a resolver over the given queue and cache.
func NewResolver(logger *slog.Logger, queue *outbox.Queue, cache storage.CacheStorage) *Resolver {
	return &Resolver{
		logger: logger,
		queue:  queue,
		cache:  cache,
	}
}

// Conflicts lists the currently unresolved conflicts.
func (r *Resolver) Conflicts(ctx context.Context) ([]models.Conflict, error) {
	entries, err := r.queue.Conflicts(ctx)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.Conflict, 0, len(entries))
	for _, e := range entries {
		if e.RemoteSnapshot == nil {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			EntryID:          e.ID,
			Path:             e.Path,
			LocalContent:     e.Payload,
			RemoteContent:    e.RemoteSnapshot.Content,
			RemoteRevision:   e.RemoteSnapshot.Revision,
			RemoteModifiedAt: e.RemoteSnapshot.ModifiedAt,
			RemoteDeleted:    e.RemoteSnapshot.Deleted,
		})
	}
	return conflicts, nil
}

// KeepLocal re-queues the local content keyed to the remote revision, so the
// next push overwrites the remote copy. The forced write is still
// conditional: if the server moves again before the push lands, a fresh
// conflict is raised instead of silently clobbering the newer state.
func (r *Resolver) KeepLocal(ctx context.Context, entryID string) error {
	entry, err := r.entry(ctx, entryID)
	if err != nil {
		return err
	}

	if err := r.queue.Requeue(ctx, entryID, entry.Payload, entry.RemoteSnapshot.Revision); err != nil {
		return err
	}

	r.logger.Info("conflict resolved keep-local", "path", entry.Path, "base_revision", entry.RemoteSnapshot.Revision)
	return nil
}

// KeepRemote discards the local edit and adopts the remote snapshot into the
// cache. The outbox entry is removed; nothing is sent to the server.
func (r *Resolver) KeepRemote(ctx context.Context, entryID string) error {
	entry, err := r.entry(ctx, entryID)
	if err != nil {
		return err
	}

	remote := entry.RemoteSnapshot
	if remote.Deleted {
		if err := r.cache.DeleteCached(ctx, entry.Path); err != nil {
			return err
		}
	} else {
		if err := r.cache.PutCached(ctx, &models.CacheEntry{
			Path:       remote.Path,
			Content:    remote.Content,
			Revision:   remote.Revision,
			ModifiedAt: remote.ModifiedAt,
		}); err != nil {
			return err
		}
	}

	if err := r.queue.Discard(ctx, entryID); err != nil {
		return err
	}

	r.logger.Info("conflict resolved keep-remote", "path", entry.Path, "revision", remote.Revision)
	return nil
}

// Merge re-queues user-merged content keyed to the remote revision. The
// merged bytes also become the local cache content so reads reflect the
// decision immediately.
func (r *Resolver) Merge(ctx context.Context, entryID string, merged []byte) error {
	entry, err := r.entry(ctx, entryID)
	if err != nil {
		return err
	}

	if err := r.cache.PutCached(ctx, &models.CacheEntry{
		Path:       entry.Path,
		Content:    merged,
		Revision:   entry.RemoteSnapshot.Revision,
		ModifiedAt: time.Now(),
	}); err != nil {
		return err
	}

	if err := r.queue.Requeue(ctx, entryID, merged, entry.RemoteSnapshot.Revision); err != nil {
		return err
	}

	r.logger.Info("conflict resolved merge", "path", entry.Path, "base_revision", entry.RemoteSnapshot.Revision)
	return nil
}

// entry loads a conflicted entry and checks it is actually resolvable.
func (r *Resolver) entry(ctx context.Context, entryID string) (*models.OutboxEntry, error) {
	entry, err := r.queue.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.State != models.StateConflict {
		return nil, fmt.Errorf("entry %s is not in conflict (state=%s)", entryID, entry.State)
	}
	if entry.RemoteSnapshot == nil {
		return nil, fmt.Errorf("entry %s has no remote snapshot", entryID)
	}
	return entry, nil
}
