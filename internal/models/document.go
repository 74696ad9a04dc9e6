// Package models contains the domain types shared by the vault server and
// the client sync core.
package models

import "time"

// Document is a single vault page or attachment together with its
// concurrency tokens. Revision is assigned by the document repository from a
// vault-global strictly increasing counter, so per path it only ever grows.
// A deleted document is a tombstone: content is gone but identity and
// revision remain resolvable for sync purposes.
type Document struct {
	Path       string    `json:"path"`
	Content    []byte    `json:"content,omitempty"`
	Revision   int64     `json:"revision"`
	ModifiedAt time.Time `json:"modified_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// Change is one row of the vault change feed: document identity plus
// concurrency tokens, without content.
type Change struct {
	Path       string    `json:"path"`
	Revision   int64     `json:"revision"`
	ModifiedAt time.Time `json:"modified_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// CacheEntry is the client-side projection of a document: the last content
// and revision the client has seen confirmed by the server.
type CacheEntry struct {
	Path       string    `json:"path"`
	Content    []byte    `json:"content"`
	Revision   int64     `json:"revision"`
	ModifiedAt time.Time `json:"modified_at"`
}
