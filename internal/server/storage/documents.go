package storage

import (
	"context"

	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/pkg/api"
)

// DocumentStorage defines the interface of the authoritative document store.
// It is the single owner of revision assignment: every successful write or
// delete takes the next value of the vault-global revision counter.
type DocumentStorage interface {
	// GetDocument retrieves a document by path.
	// Returns ErrDocumentNotFound if the path does not exist or is tombstoned.
	GetDocument(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error)

	// GetDocumentAny retrieves a document by path, tombstones included.
	// Used by sync clients that need to distinguish "deleted" from "never
	// existed". Returns ErrDocumentNotFound only if the path was never written.
	GetDocumentAny(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error)

	// WriteDocument creates or replaces a document. A nil precondition makes
	// the write unconditional. A precondition that no longer matches the
	// stored document fails with *ConflictError carrying the current state.
	// Writing over a tombstone recreates the document.
	WriteDocument(ctx context.Context, vault models.VaultContext, path string, content []byte, expected *api.Precondition) (*models.Document, error)

	// DeleteDocument tombstones a document with the same conditional
	// semantics as WriteDocument. The tombstone takes a fresh revision so the
	// change feed carries the deletion to other clients.
	DeleteDocument(ctx context.Context, vault models.VaultContext, path string, expected *api.Precondition) (*models.Document, error)

	// ChangesSince returns up to limit documents whose revision exceeds
	// cursor, tombstones included, ordered by revision ascending. hasMore
	// reports whether more changes exist beyond the returned page. current is
	// the vault's global revision counter value.
	ChangesSince(ctx context.Context, vault models.VaultContext, cursor int64, limit int) (changes []*models.Change, current int64, hasMore bool, err error)
}
