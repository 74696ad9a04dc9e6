package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimx/zimx-sync/internal/server/storage/sqlite"
	"github.com/zimx/zimx-sync/pkg/api"
)

func setupVaultMux(t *testing.T) *http.ServeMux {
	t.Helper()

	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewVaultHandler(logger, store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/vaults/{vault}/doc", h.ReadDocument)
	mux.HandleFunc("PUT /api/v1/vaults/{vault}/doc", h.WriteDocument)
	mux.HandleFunc("DELETE /api/v1/vaults/{vault}/doc", h.DeleteDocument)
	mux.HandleFunc("GET /api/v1/vaults/{vault}/changes", h.Changes)
	return mux
}

func writeDoc(t *testing.T, mux *http.ServeMux, path, content, ifMatch string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(api.WriteDocumentRequest{Content: []byte(content)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/vaults/main/doc?path="+path, bytes.NewReader(body))
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestWriteDocument(t *testing.T) {
	mux := setupVaultMux(t)

	// Unconditional write of a new path.
	w := writeDoc(t, mux, "/notes/a.md", "hello", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.WriteDocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Revision)

	// Conditional create of another path reports 201.
	w = writeDoc(t, mux, "/notes/b.md", "created", "rev:0")
	assert.Equal(t, http.StatusCreated, w.Code)

	// Conditional update keyed to the current revision.
	w = writeDoc(t, mux, "/notes/a.md", "updated", "rev:1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteDocumentConflict(t *testing.T) {
	mux := setupVaultMux(t)

	require.Equal(t, http.StatusOK, writeDoc(t, mux, "/a.md", "v1", "").Code)
	require.Equal(t, http.StatusOK, writeDoc(t, mux, "/a.md", "v2", "rev:1").Code)

	// Stale revision: 409 carrying the current document.
	w := writeDoc(t, mux, "/a.md", "v3", "rev:1")
	require.Equal(t, http.StatusConflict, w.Code)

	var conflict api.ConflictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, "/a.md", conflict.Current.Path)
	assert.Equal(t, int64(2), conflict.Current.Revision)
	assert.Equal(t, []byte("v2"), conflict.Current.Content)
}

func TestWriteDocumentBadRequests(t *testing.T) {
	mux := setupVaultMux(t)

	// Malformed precondition.
	w := writeDoc(t, mux, "/a.md", "x", "etag:nope")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Path escaping the vault root.
	w = writeDoc(t, mux, "/../etc/passwd", "x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Invalid vault id.
	body, _ := json.Marshal(api.WriteDocumentRequest{Content: []byte("x")})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/vaults/bad%20vault/doc?path=/a.md", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadDocument(t *testing.T) {
	mux := setupVaultMux(t)
	require.Equal(t, http.StatusOK, writeDoc(t, mux, "/a.md", "content", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/doc?path=/a.md", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var doc api.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, []byte("content"), doc.Content)
	assert.Equal(t, int64(1), doc.Revision)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/doc?path=/missing.md", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocument(t *testing.T) {
	mux := setupVaultMux(t)
	require.Equal(t, http.StatusOK, writeDoc(t, mux, "/a.md", "bye", "").Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/vaults/main/doc?path=/a.md", nil)
	req.Header.Set("If-Match", "rev:1")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.WriteDocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Revision)

	// Plain reads no longer see the document.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/doc?path=/a.md", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Tombstone reads do.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/doc?path=/a.md&tombstone=1", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var doc api.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.True(t, doc.Deleted)
}

func TestChanges(t *testing.T) {
	mux := setupVaultMux(t)

	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusOK, writeDoc(t, mux, fmt.Sprintf("/p%d.md", i), "x", "").Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/changes?since=2", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ChangesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Changes, 2)
	assert.Equal(t, int64(4), resp.CurrentRevision)
	assert.False(t, resp.HasMore)

	// Paging via limit.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/changes?since=0&limit=3", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Changes, 3)
	assert.True(t, resp.HasMore)

	// Bad cursor.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/vaults/main/changes?since=-1", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
