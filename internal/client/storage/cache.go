package storage

import (
	"context"

	"github.com/zimx/zimx-sync/internal/models"
)

// CacheStorage defines the interface for the local document cache. The cache
// mirrors the last known server state per path and is the read path for all
// offline operation.
type CacheStorage interface {
	// PutCached stores or replaces the cached copy of a document
	PutCached(ctx context.Context, entry *models.CacheEntry) error

	// GetCached retrieves the cached copy of a document by path
	// Returns ErrCacheMiss if the path has never been cached
	GetCached(ctx context.Context, path string) (*models.CacheEntry, error)

	// DeleteCached removes the cached copy of a document
	// Deleting an absent path is a no-op
	DeleteCached(ctx context.Context, path string) error

	// ListCached returns all cached entries ordered by path
	ListCached(ctx context.Context) ([]*models.CacheEntry, error)

	// ClearCache removes all cached entries
	// Used on vault switch and full re-sync
	ClearCache(ctx context.Context) error
}
