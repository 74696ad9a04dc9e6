package storage

import (
	"errors"
	"fmt"

	"github.com/zimx/zimx-sync/internal/models"
)

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrDocumentNotFound indicates that document does not exist or is tombstoned
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRevisionMismatch indicates that a conditional write presented a stale
	// precondition. Returned wrapped in a *ConflictError carrying the current
	// document.
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// ConflictError is returned when a conditional write or delete fails because
// the caller's precondition no longer matches the stored document. Current is
// the server-side document at the time of the attempt, tombstones included.
type ConflictError struct {
	Current *models.Document
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision mismatch for %s: current revision %d", e.Current.Path, e.Current.Revision)
}

// Unwrap makes errors.Is(err, ErrRevisionMismatch) work on wrapped conflicts.
func (e *ConflictError) Unwrap() error {
	return ErrRevisionMismatch
}
