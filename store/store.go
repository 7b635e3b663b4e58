// Package store defines the document-store driver contract consumed by the
// mapping core, plus two drivers: an in-memory store and a sqlite-backed
// store. Drivers deal exclusively in wire documents (primitive-only JSON
// trees); they never see decoded extended values.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Options carries pass-through query configuration. Skip and limit are not
// part of the driver contract: pagination is counted client-side, after
// predicate filtering.
type Options struct {
	SortField string
	SortDesc  bool
	Hint      string // index hint; drivers may ignore it
}

// InsertResult reports the outcome of an insert.
type InsertResult struct {
	Acknowledged bool
}

// UpdateResult reports the outcome of a findOneAndUpdate. Document is the
// post-update wire document, or nil if no document matched.
type UpdateResult struct {
	Acknowledged bool
	Document     map[string]any
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	Acknowledged bool
	Found        bool
}

// ConflictError reports a write that collided with an existing value on a
// field declared unique.
type ConflictError struct {
	Field string
	Value any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: duplicate value %v for unique field %q", e.Value, e.Field)
}

// ErrDuplicateID is returned when an insert reuses an existing identifier.
var ErrDuplicateID = errors.New("store: document id already exists")

// Stream is a server-side result stream. Next returns io.EOF once drained.
// Close releases the underlying resource and is safe to call more than once.
type Stream interface {
	Next(ctx context.Context) (map[string]any, error)
	Close() error
}

// Driver is the document-store contract the mapping core is written against.
// Implementations must apply update documents atomically per call; atomicity
// across calls is out of scope.
type Driver interface {
	OpenResultStream(ctx context.Context, collection string, filter map[string]any, opts Options) (Stream, error)
	InsertOne(ctx context.Context, collection string, doc map[string]any) (InsertResult, error)
	FindOneAndUpdate(ctx context.Context, collection, id string, update map[string]any) (UpdateResult, error)
	DeleteOne(ctx context.Context, collection, id string) (DeleteResult, error)

	// EnsureUnique declares a top-level field unique within a collection.
	EnsureUnique(ctx context.Context, collection, field string) error

	Close() error
}

// sliceStream serves a pre-materialized snapshot of matching documents. Both
// drivers snapshot at open time, so concurrent writes never reorder or tear
// an open result set.
type sliceStream struct {
	docs []map[string]any
	pos  int
}

func (s *sliceStream) Next(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	doc := s.docs[s.pos]
	s.pos++
	return doc, nil
}

func (s *sliceStream) Close() error {
	s.docs = nil
	s.pos = 0
	return nil
}
