package storage

import (
	"context"

	"github.com/zimx/zimx-sync/internal/models"
)

// OutboxStorage defines the durable FIFO queue of local operations waiting to
// be pushed to the server. Entries survive restarts and are keyed by a
// monotonically increasing sequence number.
type OutboxStorage interface {
	// AppendEntry assigns the next sequence number to the entry and persists it
	AppendEntry(ctx context.Context, entry *models.OutboxEntry) error

	// UpdateEntry rewrites an existing entry in place, keeping its sequence
	// Returns ErrEntryNotFound if the entry does not exist
	UpdateEntry(ctx context.Context, entry *models.OutboxEntry) error

	// GetEntry retrieves an entry by its id
	// Returns ErrEntryNotFound if the entry does not exist
	GetEntry(ctx context.Context, id string) (*models.OutboxEntry, error)

	// RemoveEntry deletes an entry by its id
	// Removing an absent entry is a no-op
	RemoveEntry(ctx context.Context, id string) error

	// ListEntries returns all entries in sequence order
	ListEntries(ctx context.Context) ([]*models.OutboxEntry, error)

	// ClearEntries removes all entries
	// Used on vault switch
	ClearEntries(ctx context.Context) error
}
