package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/neisanworks/neisan-mongo/codec"
	"github.com/neisanworks/neisan-mongo/internal/logger"
	"github.com/neisanworks/neisan-mongo/store"
)

// BulkWriter batches inserts into one collection. Encoding and validation of
// queued documents run in parallel on a worker pool; the store writes happen
// sequentially in queue order, so results line up with the order documents
// were queued.
type BulkWriter struct {
	coll *Collection
	pool *ants.Pool

	mu   sync.Mutex
	docs []Document
}

// NewBulkWriter creates a bulk writer with the given number of preparation
// workers.
func NewBulkWriter(coll *Collection, workers int) (*BulkWriter, error) {
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Error("bulk preparation worker panicked", "collection", coll.name, "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	return &BulkWriter{coll: coll, pool: pool}, nil
}

// Queue adds a document to the pending batch. The document is copied, so the
// caller may keep mutating the original.
func (w *BulkWriter) Queue(doc Document) {
	w.mu.Lock()
	w.docs = append(w.docs, doc.Clone())
	w.mu.Unlock()
}

type prepared struct {
	id          ID
	wire        map[string]any
	fieldErrors map[string]string
	err         error
}

// Flush writes the pending batch and empties it. The returned slice has one
// result per queued document, in queue order. Per-document validation
// failures and conflicts land in that document's result; a hard error aborts
// the flush after the writes already applied.
func (w *BulkWriter) Flush(ctx context.Context) (results []InsertResult, err error) {
	w.mu.Lock()
	batch := w.docs
	w.docs = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil, nil
	}
	if w.coll.db.isClosed() {
		return nil, ErrDatabaseClosed
	}

	preps := make([]prepared, len(batch))
	var wg sync.WaitGroup
	for i, doc := range batch {
		wg.Add(1)
		i, doc := i, doc
		submitErr := w.pool.Submit(func() {
			defer wg.Done()
			preps[i] = w.prepare(doc)
		})
		if submitErr != nil {
			wg.Done()
			preps[i] = prepared{err: submitErr}
		}
	}
	wg.Wait()

	results = make([]InsertResult, len(batch))
	for i, p := range preps {
		if p.err != nil {
			return results, fmt.Errorf("mongo: bulk prepare document %d: %w", i, p.err)
		}
		if p.fieldErrors != nil {
			results[i] = InsertResult{FieldErrors: p.fieldErrors}
			continue
		}
		ires, err := w.coll.db.driver.InsertOne(ctx, w.coll.name, p.wire)
		if err != nil {
			var conflict *store.ConflictError
			if errors.As(err, &conflict) {
				results[i] = InsertResult{FieldErrors: map[string]string{
					conflict.Field: fmt.Sprintf("duplicate value %v", conflict.Value),
				}}
				continue
			}
			return results, fmt.Errorf("mongo: bulk insert document %d: %w", i, err)
		}
		if !ires.Acknowledged {
			return results, ErrWriteRejected
		}
		results[i] = InsertResult{OK: true, ID: p.id}
	}
	return results, nil
}

func (w *BulkWriter) prepare(doc Document) prepared {
	id, ok := doc.GetID()
	if !ok {
		id = ID(uuid.NewString())
		doc.SetID(id)
	}
	wire, err := codec.EncodeDocument(doc)
	if err != nil {
		return prepared{err: err}
	}
	vres, err := w.coll.db.validator.Validate(w.coll.schema(), wire)
	if err != nil {
		return prepared{err: err}
	}
	if !vres.OK {
		return prepared{fieldErrors: vres.FieldErrors}
	}
	return prepared{id: id, wire: wire}
}

// Release shuts the preparation pool down. The writer cannot flush afterward.
func (w *BulkWriter) Release() {
	w.pool.Release()
}
