package outbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimx/zimx-sync/internal/client/storage/boltdb"
	"github.com/zimx/zimx-sync/internal/models"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewQueue(logger, store, 3)
}

func TestEnqueueWriteCoalesces(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	first, err := q.EnqueueWrite(ctx, "/a.md", []byte("v1"), 5)
	require.NoError(t, err)
	second, err := q.EnqueueWrite(ctx, "/a.md", []byte("v2"), 6)
	require.NoError(t, err)

	// Same entry, newest payload, original base revision.
	assert.Equal(t, first.ID, second.ID)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("v2"), entries[0].Payload)
	assert.Equal(t, int64(5), entries[0].BaseRevision)
}

func TestEnqueueWriteDifferentPathsDoNotCoalesce(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)
	_, err = q.EnqueueWrite(ctx, "/b.md", []byte("b"), 0)
	require.NoError(t, err)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteAbsorbsWrite(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.EnqueueWrite(ctx, "/a.md", []byte("draft"), 5)
	require.NoError(t, err)
	_, err = q.EnqueueDelete(ctx, "/a.md", 5)
	require.NoError(t, err)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Op)
}

func TestEnqueueDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	first, err := q.EnqueueDelete(ctx, "/a.md", 5)
	require.NoError(t, err)
	second, err := q.EnqueueDelete(ctx, "/a.md", 5)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMoveRewritesNestedPendingPaths(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.EnqueueWrite(ctx, "/proj/a.md", []byte("a"), 0)
	require.NoError(t, err)
	_, err = q.EnqueueWrite(ctx, "/proj/sub/b.md", []byte("b"), 0)
	require.NoError(t, err)
	_, err = q.EnqueueWrite(ctx, "/other/c.md", []byte("c"), 0)
	require.NoError(t, err)

	_, err = q.EnqueueMove(ctx, "/proj", "/archive/proj", 0)
	require.NoError(t, err)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	paths := make(map[string]bool)
	for _, e := range entries {
		if e.Op == models.OpWrite {
			paths[e.Path] = true
		}
	}
	assert.True(t, paths["/archive/proj/a.md"])
	assert.True(t, paths["/archive/proj/sub/b.md"])
	assert.True(t, paths["/other/c.md"])
}

func TestAttachAccumulates(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.EnqueueAttach(ctx, "/page.md", []models.Attachment{{Name: "a.png", Data: []byte{1}}})
	require.NoError(t, err)
	entry, err := q.EnqueueAttach(ctx, "/page.md", []models.Attachment{{Name: "b.png", Data: []byte{2}}})
	require.NoError(t, err)

	require.Len(t, entry.Attachments, 2)
	assert.Equal(t, "a.png", entry.Attachments[0].Name)
	assert.Equal(t, "b.png", entry.Attachments[1].Name)

	count, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDequeueNextFIFOAndStates(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)
	now := time.Now()

	first, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)
	second, err := q.EnqueueWrite(ctx, "/b.md", []byte("b"), 0)
	require.NoError(t, err)

	// Park the older entry as a conflict; dequeue must skip it.
	require.NoError(t, q.MarkConflict(ctx, first, &models.Document{Path: "/a.md", Revision: 9}))

	got, err := q.DequeueNext(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, models.StateInflight, got.State)

	// Nothing else is ready.
	got, err = q.DequeueNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeueNextHonorsBackoff(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)
	now := time.Now()

	entry, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)

	got, err := q.DequeueNext(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.MarkFailed(ctx, entry.ID, errors.New("connection refused"), now))

	// Inside the backoff window the entry is not ready.
	got, err = q.DequeueNext(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Past it, the entry comes back.
	got, err = q.DequeueNext(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)
}

func TestMarkFailedCeiling(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)
	now := time.Now()
	cause := errors.New("boom")

	entry, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)

	// Ceiling is 3 in setupQueue.
	require.NoError(t, q.MarkFailed(ctx, entry.ID, cause, now))
	require.NoError(t, q.MarkFailed(ctx, entry.ID, cause, now))
	require.NoError(t, q.MarkFailed(ctx, entry.ID, cause, now))

	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "boom", got.LastError)

	// Failed entries leave the rotation until Retry.
	ready, err := q.DequeueNext(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, ready)

	require.NoError(t, q.Retry(ctx, entry.ID))
	ready, err = q.DequeueNext(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ready)
	assert.Equal(t, 0, ready.Attempts)
}

func TestRetryRequiresFailedState(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)

	assert.Error(t, q.Retry(ctx, entry.ID))
}

func TestRequeueInflight(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.EnqueueWrite(ctx, "/a.md", []byte("a"), 0)
	require.NoError(t, err)

	_, err = q.DequeueNext(ctx, time.Now())
	require.NoError(t, err)

	// Simulates a restart after a crash mid-push.
	require.NoError(t, q.RequeueInflight(ctx))

	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQueued, got.State)
}

func TestConflictLifecycle(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.EnqueueWrite(ctx, "/a.md", []byte("local"), 3)
	require.NoError(t, err)

	remote := &models.Document{Path: "/a.md", Content: []byte("remote"), Revision: 7}
	require.NoError(t, q.MarkConflict(ctx, entry, remote))

	conflicts, err := q.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(7), conflicts[0].RemoteSnapshot.Revision)

	// A conflicted write does not coalesce with a new edit.
	fresh, err := q.EnqueueWrite(ctx, "/a.md", []byte("newer"), 3)
	require.NoError(t, err)
	assert.NotEqual(t, entry.ID, fresh.ID)

	// Resolution requeues with the remote revision as the new base.
	require.NoError(t, q.Requeue(ctx, entry.ID, []byte("merged"), 7))
	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQueued, got.State)
	assert.Equal(t, int64(7), got.BaseRevision)
	assert.Nil(t, got.RemoteSnapshot)
}

func TestEnqueueWriteDoesNotCoalesceOntoInflight(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	first, err := q.EnqueueWrite(ctx, "/a.md", []byte("first"), 5)
	require.NoError(t, err)

	inflight, err := q.DequeueNext(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, inflight)
	require.Equal(t, first.ID, inflight.ID)

	// An edit made while the push is running gets its own entry. Folding it
	// onto the inflight one would lose it when that push completes.
	second, err := q.EnqueueWrite(ctx, "/a.md", []byte("second"), 7)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, q.MarkSucceeded(ctx, first.ID))

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, []byte("second"), entries[0].Payload)
	assert.Equal(t, models.StateQueued, entries[0].State)
}

func TestRequeueWithPayloadBecomesWrite(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.EnqueueDelete(ctx, "/a.md", 3)
	require.NoError(t, err)
	remote := &models.Document{Path: "/a.md", Content: []byte("remote"), Revision: 9}
	require.NoError(t, q.MarkConflict(ctx, entry, remote))

	// Resolving a delete conflict with content turns the entry into a
	// conditional write of that content.
	require.NoError(t, q.Requeue(ctx, entry.ID, []byte("merged"), 9))

	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpWrite, got.Op)
	assert.Equal(t, []byte("merged"), got.Payload)
	assert.Equal(t, int64(9), got.BaseRevision)
	assert.Equal(t, models.StateQueued, got.State)
}

func TestRequeueWithoutPayloadKeepsOp(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	entry, err := q.EnqueueDelete(ctx, "/a.md", 3)
	require.NoError(t, err)
	remote := &models.Document{Path: "/a.md", Content: []byte("remote"), Revision: 9}
	require.NoError(t, q.MarkConflict(ctx, entry, remote))

	// Keeping the local delete reissues it against the revision we saw.
	require.NoError(t, q.Requeue(ctx, entry.ID, nil, 9))

	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, got.Op)
	assert.Nil(t, got.Payload)
	assert.Equal(t, int64(9), got.BaseRevision)
}

func TestMoveOpSelection(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	// Same parent folder: a rename.
	entry, err := q.EnqueueMove(ctx, "/notes/a.md", "/notes/b.md", 3)
	require.NoError(t, err)
	assert.Equal(t, models.OpRename, entry.Op)
	assert.Equal(t, "/notes/b.md", entry.NewPath)

	// Different parent: a move.
	entry, err = q.EnqueueMove(ctx, "/notes/b.md", "/archive/b.md", 3)
	require.NoError(t, err)
	assert.Equal(t, models.OpMove, entry.Op)
}
