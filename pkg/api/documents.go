// Package api contains the wire types shared between the vault server and
// sync clients. All payloads are JSON; document content travels base64-encoded
// through the standard []byte marshaling.
package api

// Document represents a single vault document as it appears on the wire.
type Document struct {
	Path       string `json:"path"`
	Content    []byte `json:"content,omitempty"`
	Revision   int64  `json:"revision"`
	ModifiedAt int64  `json:"modified_at"` // unix nanoseconds
	Deleted    bool   `json:"deleted,omitempty"`
}

// WriteDocumentRequest is the body of PUT /api/v1/vaults/{vault}/doc.
// The precondition, if any, travels in the If-Match header, not the body.
type WriteDocumentRequest struct {
	Content []byte `json:"content"`
}

// WriteDocumentResponse is returned on a successful write or delete.
type WriteDocumentResponse struct {
	Revision   int64 `json:"revision"`
	ModifiedAt int64 `json:"modified_at"` // unix nanoseconds
}

// ConflictResponse is the 409 body for a failed conditional write or delete.
// It carries the current server-side document so the caller can start
// resolution without a second round trip.
type ConflictResponse struct {
	Current Document `json:"current"`
	Message string   `json:"message,omitempty"`
}

// ErrorResponse represents a generic error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
