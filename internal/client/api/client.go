// Package api implements the HTTP client for the vault server: auth calls
// plus the conditional document repository contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zimx/zimx-sync/internal/models"
	"github.com/zimx/zimx-sync/pkg/api"
)

// ConflictError is returned when a conditional write or delete is rejected
// with 409. Remote carries the current server-side document from the response
// body.
type ConflictError struct {
	Remote *models.Document
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("precondition failed: server is at revision %d", e.Remote.Revision)
}

// NotFoundError is returned when the server replies 404.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found on server", e.Path)
}

// Client is the HTTP client for the vault server
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Carry the Authorization header across redirects
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetToken sets the Bearer token used on authenticated calls
func (c *Client) SetToken(token string) {
	c.token = token
}

// Register creates a new server account
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login authenticates and returns an access token
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Read fetches the current document at path. With tombstones true, logically
// deleted documents are returned instead of NotFoundError.
func (c *Client) Read(ctx context.Context, vault models.VaultContext, path string, tombstones bool) (*models.Document, error) {
	q := url.Values{"path": {path}}
	if tombstones {
		q.Set("tombstone", "1")
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.docURL(vault, q), nil)
	if err != nil {
		return nil, err
	}

	var doc api.Document
	if err := c.do(req, path, &doc); err != nil {
		return nil, err
	}
	return fromAPIDocument(&doc), nil
}

// Write performs a conditional write of content at path. A nil precondition
// makes the write unconditional. On a 409 reply the returned error is a
// *ConflictError carrying the current remote document.
func (c *Client) Write(ctx context.Context, vault models.VaultContext, path string, content []byte, expected *api.Precondition) (*api.WriteDocumentResponse, error) {
	body, err := json.Marshal(api.WriteDocumentRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal write request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.docURL(vault, url.Values{"path": {path}}), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if expected != nil {
		req.Header.Set("If-Match", expected.IfMatch())
	}

	var resp api.WriteDocumentResponse
	if err := c.do(req, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete performs a conditional delete of path. Conflict semantics match
// Write.
func (c *Client) Delete(ctx context.Context, vault models.VaultContext, path string, expected *api.Precondition) (*api.WriteDocumentResponse, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, c.docURL(vault, url.Values{"path": {path}}), nil)
	if err != nil {
		return nil, err
	}
	if expected != nil {
		req.Header.Set("If-Match", expected.IfMatch())
	}

	var resp api.WriteDocumentResponse
	if err := c.do(req, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangesSince fetches one page of the vault change feed past the cursor.
func (c *Client) ChangesSince(ctx context.Context, vault models.VaultContext, cursor int64, limit int) (*api.ChangesResponse, error) {
	q := url.Values{"since": {strconv.FormatInt(cursor, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	u := fmt.Sprintf("%s/api/v1/vaults/%s/changes?%s", c.baseURL, url.PathEscape(vault.ID), q.Encode())
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp api.ChangesResponse
	if err := c.do(req, "", &resp); err != nil {
		return nil, fmt.Errorf("changes request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) docURL(vault models.VaultContext, q url.Values) string {
	return fmt.Sprintf("%s/api/v1/vaults/%s/doc?%s", c.baseURL, url.PathEscape(vault.ID), q.Encode())
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do runs the request and decodes the reply, mapping 409 to *ConflictError
// and 404 to *NotFoundError.
func (c *Client) do(req *http.Request, path string, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		var conflict api.ConflictResponse
		if err := json.Unmarshal(respBody, &conflict); err != nil {
			return fmt.Errorf("failed to decode conflict response: %w", err)
		}
		return &ConflictError{Remote: fromAPIDocument(&conflict.Current)}

	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Path: path}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// doJSON sends a JSON body and decodes a JSON reply for the auth endpoints.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := c.newRequest(ctx, method, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "", result)
}

// fromAPIDocument converts a wire document to its domain form.
func fromAPIDocument(doc *api.Document) *models.Document {
	return &models.Document{
		Path:       doc.Path,
		Content:    doc.Content,
		Revision:   doc.Revision,
		ModifiedAt: time.Unix(0, doc.ModifiedAt),
		Deleted:    doc.Deleted,
	}
}
