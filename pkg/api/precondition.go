package api

import (
	"fmt"
	"strconv"
	"strings"
)

// PreconditionKind selects which concurrency token a conditional write is
// keyed to.
type PreconditionKind string

const (
	// PreconditionRevision keys the write to the document revision counter.
	PreconditionRevision PreconditionKind = "rev"
	// PreconditionMTime keys the write to the modification timestamp
	// (unix nanoseconds).
	PreconditionMTime PreconditionKind = "mtime"
)

// Precondition expresses the optimistic-concurrency check of a write or
// delete. It is carried as an If-Match header of the form "rev:<n>" or
// "mtime:<n>". A revision value of 0 means "the path must not exist yet",
// since absent documents have an implicit revision of 0.
type Precondition struct {
	Kind  PreconditionKind
	Value int64
}

// IfMatch formats the precondition as an If-Match header value.
func (p Precondition) IfMatch() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.Value)
}

// ExpectRevision builds a revision-keyed precondition.
func ExpectRevision(rev int64) *Precondition {
	return &Precondition{Kind: PreconditionRevision, Value: rev}
}

// ExpectMTime builds an mtime-keyed precondition.
func ExpectMTime(unixNano int64) *Precondition {
	return &Precondition{Kind: PreconditionMTime, Value: unixNano}
}

// ParseIfMatch parses an If-Match header value. An empty header yields a nil
// precondition, meaning the write is unconditional.
func ParseIfMatch(header string) (*Precondition, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	kind, value, ok := strings.Cut(header, ":")
	if !ok {
		return nil, fmt.Errorf("invalid If-Match value %q: expected <kind>:<number>", header)
	}

	k := PreconditionKind(kind)
	if k != PreconditionRevision && k != PreconditionMTime {
		return nil, fmt.Errorf("invalid If-Match kind %q", kind)
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match value %q: %w", header, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid If-Match value %q: must be non-negative", header)
	}

	return &Precondition{Kind: k, Value: n}, nil
}
