package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrCacheMiss indicates that the document is not in the local cache
	ErrCacheMiss = errors.New("document not found in cache")

	// ErrEntryNotFound indicates that the outbox entry was not found
	ErrEntryNotFound = errors.New("outbox entry not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
