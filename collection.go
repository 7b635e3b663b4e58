package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neisanworks/neisan-mongo/codec"
	"github.com/neisanworks/neisan-mongo/diff"
	"github.com/neisanworks/neisan-mongo/internal/logger"
	"github.com/neisanworks/neisan-mongo/metrics"
	"github.com/neisanworks/neisan-mongo/store"
)

// Collection is a named set of documents sharing an optional JSON Schema and
// unique-field declarations. All write paths validate the wire form before
// touching the store.
type Collection struct {
	db   *Database
	name string

	mu         sync.RWMutex
	schemaJSON string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// SetSchema attaches a JSON Schema to the collection. The schema is compiled
// eagerly so a broken schema fails here, not on the first write. An empty
// schema removes validation.
func (c *Collection) SetSchema(schemaJSON string) error {
	if schemaJSON != "" {
		if err := c.db.validator.Compile(schemaJSON); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.schemaJSON = schemaJSON
	c.mu.Unlock()
	return nil
}

// EnsureUnique declares a top-level field unique within the collection.
func (c *Collection) EnsureUnique(ctx context.Context, field string) error {
	return c.db.driver.EnsureUnique(ctx, c.name, field)
}

func (c *Collection) schema() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemaJSON
}

func (c *Collection) observe(op string, start time.Time, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Insert validates and stores a new document. A missing identifier is
// generated. Validation failures and uniqueness conflicts come back as
// field-keyed messages on the result, not as errors.
func (c *Collection) Insert(ctx context.Context, doc Document) (res InsertResult, err error) {
	defer func(start time.Time) { c.observe("insert", start, err != nil) }(time.Now())
	if c.db.isClosed() {
		return InsertResult{}, ErrDatabaseClosed
	}

	stored := doc.Clone()
	id, ok := stored.GetID()
	if !ok {
		id = ID(uuid.NewString())
		stored.SetID(id)
	}

	wire, err := codec.EncodeDocument(stored)
	if err != nil {
		return InsertResult{}, err
	}
	vres, err := c.db.validator.Validate(c.schema(), wire)
	if err != nil {
		return InsertResult{}, err
	}
	if !vres.OK {
		return InsertResult{FieldErrors: vres.FieldErrors}, nil
	}

	ires, err := c.db.driver.InsertOne(ctx, c.name, wire)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return InsertResult{FieldErrors: map[string]string{
				conflict.Field: fmt.Sprintf("duplicate value %v", conflict.Value),
			}}, nil
		}
		logger.Error("insert failed", "collection", c.name, "error", err)
		return InsertResult{}, err
	}
	if !ires.Acknowledged {
		return InsertResult{}, ErrWriteRejected
	}
	return InsertResult{OK: true, ID: id}, nil
}

// Get fetches the document with the given identifier, decoded.
func (c *Collection) Get(ctx context.Context, id ID) (doc Document, err error) {
	defer func(start time.Time) { c.observe("get", start, err != nil) }(time.Now())
	if c.db.isClosed() {
		return nil, ErrDatabaseClosed
	}

	stream, err := c.db.driver.OpenResultStream(ctx, c.name,
		map[string]any{IDField: string(id)}, store.Options{})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	wire, err := stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeDocument(wire)
}

// Save computes the change-set between two states of a stored document and
// applies it atomically. An empty change-set is a distinct no-op outcome and
// writes nothing. The after state is validated in wire form before any write.
func (c *Collection) Save(ctx context.Context, before, after Document) (res SaveResult, err error) {
	defer func(start time.Time) { c.observe("save", start, err != nil) }(time.Now())
	if c.db.isClosed() {
		return SaveResult{}, ErrDatabaseClosed
	}

	id, ok := before.GetID()
	if !ok {
		id, ok = after.GetID()
	}
	if !ok {
		return SaveResult{}, fmt.Errorf("mongo: save requires a document identifier: %w", ErrNotFound)
	}

	wire, err := codec.EncodeDocument(after)
	if err != nil {
		return SaveResult{}, err
	}
	vres, err := c.db.validator.Validate(c.schema(), wire)
	if err != nil {
		return SaveResult{}, err
	}
	if !vres.OK {
		return SaveResult{FieldErrors: vres.FieldErrors}, nil
	}

	cs, err := diff.Diff("", before, after)
	if err != nil {
		return SaveResult{}, err
	}
	if cs.Empty() {
		return SaveResult{OK: true, NoOp: true, Document: after}, nil
	}

	ures, err := c.db.driver.FindOneAndUpdate(ctx, c.name, string(id), cs.UpdateDocument())
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return SaveResult{FieldErrors: map[string]string{
				conflict.Field: fmt.Sprintf("duplicate value %v", conflict.Value),
			}}, nil
		}
		logger.Error("save failed", "collection", c.name, "id", id, "error", err)
		return SaveResult{}, err
	}
	if !ures.Acknowledged {
		return SaveResult{}, ErrWriteRejected
	}
	if ures.Document == nil {
		return SaveResult{}, ErrNotFound
	}

	updated, err := codec.DecodeDocument(ures.Document)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{OK: true, Document: updated}, nil
}

// Patch fetches the document, applies dot-path assignments and removals to a
// copy, and saves the result through the usual diff path.
func (c *Collection) Patch(ctx context.Context, id ID, set map[string]any, unset ...string) (SaveResult, error) {
	before, err := c.Get(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}
	after := before.Clone()
	for path, v := range set {
		setField(after, path, v)
	}
	for _, path := range unset {
		deleteField(after, path)
	}
	return c.Save(ctx, before, after)
}

// Delete removes the document with the given identifier. ErrNotFound if no
// document matched.
func (c *Collection) Delete(ctx context.Context, id ID) (err error) {
	defer func(start time.Time) { c.observe("delete", start, err != nil) }(time.Now())
	if c.db.isClosed() {
		return ErrDatabaseClosed
	}

	dres, err := c.db.driver.DeleteOne(ctx, c.name, string(id))
	if err != nil {
		return err
	}
	if !dres.Acknowledged {
		return ErrWriteRejected
	}
	if !dres.Found {
		return ErrNotFound
	}
	return nil
}

// Find returns a cursor over documents matching an exact-match filter, pushed
// to the store's query engine. A nil filter matches everything.
func (c *Collection) Find(filter map[string]any) *Cursor {
	return newCursor(c, filter, nil)
}

// Where returns a cursor in predicate mode: the store-level query matches
// everything and pred runs against each decoded document.
func (c *Collection) Where(pred func(Document) (bool, error)) *Cursor {
	return newCursor(c, nil, pred)
}

// WhereExpr compiles a CEL expression into a predicate-mode cursor. The
// document is exposed to the expression as `doc` in its wire form. Compile
// errors surface here, not on the first pull.
func (c *Collection) WhereExpr(expression string) (*Cursor, error) {
	fn, err := c.db.predicates.Compile(expression)
	if err != nil {
		return nil, err
	}
	return c.Where(func(doc Document) (bool, error) {
		wire, err := codec.EncodeDocument(doc)
		if err != nil {
			return false, err
		}
		return fn(wire)
	}), nil
}

func keyed(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

// setField assigns a value at a dot-delimited path, creating intermediate
// keyed collections as needed.
func setField(doc Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := keyed(cur[p])
		if !ok {
			next = Document{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// deleteField removes the value at a dot-delimited path, if present.
func deleteField(doc Document, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := keyed(cur[p])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
