package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/internal/server/storage"
	"github.com/zimx/zimx-sync/internal/validation"
	"github.com/zimx/zimx-sync/pkg/api"
)

// defaultChangesLimit caps one page of the change feed.
const defaultChangesLimit = 100

// maxChangesLimit is the hard ceiling a client may request per page.
const maxChangesLimit = 1000

// VaultStorage defines the document store operations the vault handler needs
type VaultStorage interface {
	GetDocument(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error)
	GetDocumentAny(ctx context.Context, vault models.VaultContext, path string) (*models.Document, error)
	WriteDocument(ctx context.Context, vault models.VaultContext, path string, content []byte, expected *api.Precondition) (*models.Document, error)
	DeleteDocument(ctx context.Context, vault models.VaultContext, path string, expected *api.Precondition) (*models.Document, error)
	ChangesSince(ctx context.Context, vault models.VaultContext, cursor int64, limit int) ([]*models.Change, int64, bool, error)
}

// VaultHandler serves the document repository HTTP surface
type VaultHandler struct {
	logger  *slog.Logger
	storage VaultStorage
}

// NewVaultHandler creates a new vault handler
func NewVaultHandler(logger *slog.Logger, storage VaultStorage) *VaultHandler {
	return &VaultHandler{
		logger:  logger,
		storage: storage,
	}
}

// ReadDocument handles GET /api/v1/vaults/{vault}/doc?path=...
// With tombstone=1 the reply includes logically deleted documents.
func (h *VaultHandler) ReadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vault, path, ok := h.vaultAndPath(w, r)
	if !ok {
		return
	}

	var (
		doc *models.Document
		err error
	)

	if r.URL.Query().Get("tombstone") == "1" {
		doc, err = h.storage.GetDocumentAny(ctx, vault, path)
	} else {
		doc, err = h.storage.GetDocument(ctx, vault, path)
	}

	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			sendError(w, h.logger, "document not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to read document", slog.String("path", path), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, toAPIDocument(doc), http.StatusOK)
}

// WriteDocument handles PUT /api/v1/vaults/{vault}/doc?path=...
// An If-Match header of the form "rev:<n>" or "mtime:<n>" makes the write
// conditional; a stale precondition yields 409 with the current document in
// the body. Without If-Match the write is unconditional.
func (h *VaultHandler) WriteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vault, path, ok := h.vaultAndPath(w, r)
	if !ok {
		return
	}

	expected, err := api.ParseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.WriteDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode write request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.storage.WriteDocument(ctx, vault, path, req.Content, expected)
	if err != nil {
		h.handleWriteError(w, r, path, err)
		return
	}

	h.logger.InfoContext(ctx, "document written",
		slog.String("vault", vault.ID),
		slog.String("path", path),
		slog.Int64("revision", doc.Revision))

	status := http.StatusOK
	if expected != nil && expected.Value == 0 {
		status = http.StatusCreated
	}

	sendJSON(w, h.logger, api.WriteDocumentResponse{
		Revision:   doc.Revision,
		ModifiedAt: doc.ModifiedAt.UnixNano(),
	}, status)
}

// DeleteDocument handles DELETE /api/v1/vaults/{vault}/doc?path=...
// Conditional semantics match WriteDocument. The document becomes a
// tombstone with a fresh revision.
func (h *VaultHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vault, path, ok := h.vaultAndPath(w, r)
	if !ok {
		return
	}

	expected, err := api.ParseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := h.storage.DeleteDocument(ctx, vault, path, expected)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			sendError(w, h.logger, "document not found", http.StatusNotFound)
			return
		}
		h.handleWriteError(w, r, path, err)
		return
	}

	h.logger.InfoContext(ctx, "document deleted",
		slog.String("vault", vault.ID),
		slog.String("path", path),
		slog.Int64("revision", doc.Revision))

	sendJSON(w, h.logger, api.WriteDocumentResponse{
		Revision:   doc.Revision,
		ModifiedAt: doc.ModifiedAt.UnixNano(),
	}, http.StatusOK)
}

// Changes handles GET /api/v1/vaults/{vault}/changes?since=N&limit=M
// Returns documents (tombstones included) whose revision exceeds the cursor,
// ordered by revision.
func (h *VaultHandler) Changes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vault, ok := h.vaultContext(w, r)
	if !ok {
		return
	}

	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		var err error
		since, err = strconv.ParseInt(s, 10, 64)
		if err != nil || since < 0 {
			sendError(w, h.logger, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	limit := defaultChangesLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			sendError(w, h.logger, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = min(n, maxChangesLimit)
	}

	changes, current, hasMore, err := h.storage.ChangesSince(ctx, vault, since, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list changes", slog.String("vault", vault.ID), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ChangesResponse{
		Changes:         make([]api.Change, 0, len(changes)),
		CurrentRevision: current,
		HasMore:         hasMore,
	}

	for _, change := range changes {
		resp.Changes = append(resp.Changes, api.Change{
			Path:       change.Path,
			Revision:   change.Revision,
			ModifiedAt: change.ModifiedAt.UnixNano(),
			Deleted:    change.Deleted,
		})
	}

	sendJSON(w, h.logger, resp, http.StatusOK)
}

// handleWriteError maps storage write failures to HTTP replies. A revision
// mismatch becomes 409 with the current document so the client can start
// conflict resolution without another round trip.
func (h *VaultHandler) handleWriteError(w http.ResponseWriter, r *http.Request, path string, err error) {
	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		current := conflict.Current
		if current.Path == "" {
			current.Path = path
		}
		h.logger.InfoContext(r.Context(), "conditional write rejected",
			slog.String("path", path),
			slog.Int64("current_revision", current.Revision))
		sendJSON(w, h.logger, api.ConflictResponse{
			Current: toAPIDocument(current),
			Message: "precondition failed",
		}, http.StatusConflict)
		return
	}

	h.logger.ErrorContext(r.Context(), "failed to write document", slog.String("path", path), slog.Any("error", err))
	sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
}

// vaultAndPath extracts and validates the vault id and document path.
func (h *VaultHandler) vaultAndPath(w http.ResponseWriter, r *http.Request) (models.VaultContext, string, bool) {
	vault, ok := h.vaultContext(w, r)
	if !ok {
		return models.VaultContext{}, "", false
	}

	rawPath := r.URL.Query().Get("path")
	if err := validation.ValidateDocumentPath(rawPath); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return models.VaultContext{}, "", false
	}

	return vault, validation.NormalizePath(rawPath), true
}

// vaultContext extracts and validates the vault id path parameter.
func (h *VaultHandler) vaultContext(w http.ResponseWriter, r *http.Request) (models.VaultContext, bool) {
	vault, err := models.NewVaultContext(r.PathValue("vault"))
	if err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return models.VaultContext{}, false
	}
	return vault, true
}

// toAPIDocument converts a domain document to its wire form.
func toAPIDocument(doc *models.Document) api.Document {
	return api.Document{
		Path:       doc.Path,
		Content:    doc.Content,
		Revision:   doc.Revision,
		ModifiedAt: doc.ModifiedAt.UnixNano(),
		Deleted:    doc.Deleted,
	}
}
