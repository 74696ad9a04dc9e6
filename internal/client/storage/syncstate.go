package storage

import "context"

// SyncStateStorage persists the pull cursor between runs. The cursor is the
// server revision up to which the client has already applied remote changes.
type SyncStateStorage interface {
	// SaveCursor stores the pull cursor
	SaveCursor(ctx context.Context, cursor int64) error

	// GetCursor retrieves the pull cursor
	// Returns 0 if no sync has been performed yet
	GetCursor(ctx context.Context) (int64, error)
}
