package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/internal/server/storage"
	"github.com/zimx/zimx-sync/pkg/api"
)

// revisionKey returns the kv key of a vault's global revision counter.
// The same counter numbers every write in the vault, which lets the change
// feed page by revision without scanning all documents.
func revisionKey(vault models.VaultContext) string {
	return "sync_revision/" + vault.ID
}

// GetDocument retrieves a document by path
// Returns ErrDocumentNotFound if the document doesn't exist or is tombstoned
func (s *Storage) GetDocument(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error) {
	doc, err := s.GetDocumentAny(ctx, vault, path)
	if err != nil {
		return nil, err
	}

	if doc.Deleted {
		return nil, storage.ErrDocumentNotFound
	}

	return doc, nil
}

// GetDocumentAny retrieves a document by path, tombstones included
// Returns ErrDocumentNotFound only if the path was never written
func (s *Storage) GetDocumentAny(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error) {
	query := `
		SELECT path, content, revision, modified_at, deleted
		FROM documents
		WHERE vault = ? AND path = ?
	`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, vault.ID, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// WriteDocument creates or replaces a document with optional optimistic
// concurrency check. On a stale precondition it returns *ConflictError with
// the current document so the caller can resolve without a second read.
func (s *Storage) WriteDocument(ctx context.Context, vault models.VaultContext, path string, content []byte, expected *api.Precondition) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentDocument(ctx, tx, vault, path)
	if err != nil {
		return nil, err
	}

	if err := checkPrecondition(current, expected); err != nil {
		return nil, err
	}

	revision, err := bumpRevision(ctx, tx, vault)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	query := `
		INSERT INTO documents (vault, path, content, revision, modified_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (vault, path) DO UPDATE
		SET content = excluded.content,
		    revision = excluded.revision,
		    modified_at = excluded.modified_at,
		    deleted = 0
	`

	if _, err := tx.ExecContext(ctx, query, vault.ID, path, content, revision, now.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit write: %w", err)
	}

	return &models.Document{
		Path:       path,
		Content:    content,
		Revision:   revision,
		ModifiedAt: now,
	}, nil
}

// DeleteDocument tombstones a document with the same conditional semantics
// as WriteDocument. The tombstone takes a fresh revision so sync clients see
// the deletion in the change feed. Deleting an existing tombstone without a
// precondition is idempotent.
func (s *Storage) DeleteDocument(ctx context.Context, vault models.VaultContext, path string, expected *api.Precondition) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentDocument(ctx, tx, vault, path)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, storage.ErrDocumentNotFound
	}

	if current.Deleted && expected == nil {
		return current, nil
	}

	if err := checkPrecondition(current, expected); err != nil {
		return nil, err
	}

	revision, err := bumpRevision(ctx, tx, vault)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	query := `
		UPDATE documents
		SET content = NULL, revision = ?, modified_at = ?, deleted = 1
		WHERE vault = ? AND path = ?
	`

	if _, err := tx.ExecContext(ctx, query, revision, now.UnixNano(), vault.ID, path); err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	return &models.Document{
		Path:       path,
		Revision:   revision,
		ModifiedAt: now,
		Deleted:    true,
	}, nil
}

// ChangesSince returns up to limit documents whose revision exceeds cursor,
// tombstones included, ordered by revision ascending.
func (s *Storage) ChangesSince(ctx context.Context, vault models.VaultContext, cursor int64, limit int) ([]*models.Change, int64, bool, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT path, revision, modified_at, deleted
		FROM documents
		WHERE vault = ? AND revision > ?
		ORDER BY revision ASC
		LIMIT ?
	`

	// Fetch one extra row to learn whether another page exists.
	rows, err := s.db.QueryContext(ctx, query, vault.ID, cursor, limit+1)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to query changes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var changes []*models.Change

	for rows.Next() {
		var (
			change     models.Change
			modifiedAt int64
			deleted    int
		)

		if err := rows.Scan(&change.Path, &change.Revision, &modifiedAt, &deleted); err != nil {
			return nil, 0, false, fmt.Errorf("failed to scan change: %w", err)
		}

		change.ModifiedAt = time.Unix(0, modifiedAt)
		change.Deleted = deleted != 0
		changes = append(changes, &change)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, false, fmt.Errorf("rows iteration error: %w", err)
	}

	hasMore := false
	if len(changes) > limit {
		hasMore = true
		changes = changes[:limit]
	}

	current, err := s.currentRevision(ctx, vault)
	if err != nil {
		return nil, 0, false, err
	}

	return changes, current, hasMore, nil
}

// currentRevision reads the vault's global revision counter.
func (s *Storage) currentRevision(ctx context.Context, vault models.VaultContext) (int64, error) {
	var current int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, revisionKey(vault)).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read revision counter: %w", err)
	}
	return current, nil
}

// currentDocument reads the stored document inside a transaction.
// Returns (nil, nil) when the path was never written.
func currentDocument(ctx context.Context, tx *sql.Tx, vault models.VaultContext, path string) (*models.Document, error) {
	query := `
		SELECT path, content, revision, modified_at, deleted
		FROM documents
		WHERE vault = ? AND path = ?
	`

	doc, err := scanDocument(tx.QueryRowContext(ctx, query, vault.ID, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read current document: %w", err)
	}

	return doc, nil
}

// checkPrecondition compares a caller-supplied precondition against the
// stored document. An absent document has implicit revision 0, so rev:0
// means "create, must not exist".
func checkPrecondition(current *models.Document, expected *api.Precondition) error {
	if expected == nil {
		return nil
	}

	var currentValue int64
	if current != nil {
		switch expected.Kind {
		case api.PreconditionMTime:
			currentValue = current.ModifiedAt.UnixNano()
		default:
			currentValue = current.Revision
		}
	}

	if currentValue == expected.Value {
		return nil
	}

	snapshot := current
	if snapshot == nil {
		snapshot = &models.Document{}
	}

	return &storage.ConflictError{Current: snapshot}
}

// bumpRevision increments and returns the vault's global revision counter
// inside the caller's transaction.
func bumpRevision(ctx context.Context, tx *sql.Tx, vault models.VaultContext) (int64, error) {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, revisionKey(vault)).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read revision counter: %w", err)
	}

	next := current + 1

	query := `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := tx.ExecContext(ctx, query, revisionKey(vault), next); err != nil {
		return 0, fmt.Errorf("failed to bump revision counter: %w", err)
	}

	return next, nil
}

// scanDocument reads one document row.
func scanDocument(row *sql.Row) (*models.Document, error) {
	var (
		doc        models.Document
		content    []byte
		modifiedAt int64
		deleted    int
	)

	if err := row.Scan(&doc.Path, &content, &doc.Revision, &modifiedAt, &deleted); err != nil {
		return nil, err
	}

	doc.Content = content
	doc.ModifiedAt = time.Unix(0, modifiedAt)
	doc.Deleted = deleted != 0

	return &doc, nil
}
