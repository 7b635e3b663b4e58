package mongo

import (
	"context"
	"errors"
	"io"

	"github.com/neisanworks/neisan-mongo/codec"
	"github.com/neisanworks/neisan-mongo/metrics"
	"github.com/neisanworks/neisan-mongo/store"
)

type cursorPhase int

const (
	phaseInit cursorPhase = iota
	phaseActive
	phaseExhausted
	phaseClosed
)

// TransformFunc is a cursor transform stage. Returning false marks the value
// absent, which closes the cursor immediately.
type TransformFunc func(Document) (Document, bool)

// Cursor is a lazy, resumable sequence of decoded documents. Query parameters
// (filter or predicate, skip, limit, sort, hint, transform pipeline) are
// immutable once built; modifier methods return a new cursor. Cursors are for
// a single cooperative consumer: no method is safe for concurrent use.
type Cursor struct {
	coll *Collection

	// Immutable query parameters. filter and pred are mutually exclusive:
	// in predicate mode the store-level query matches everything.
	filter     map[string]any
	pred       func(Document) (bool, error)
	skip       int
	limit      int // 0 means unlimited
	sortField  string
	sortDesc   bool
	hint       string
	transforms []TransformFunc

	phase   cursorPhase
	stream  store.Stream
	skipped int
	yielded int
	current Document
	err     error
}

func newCursor(coll *Collection, filter map[string]any, pred func(Document) (bool, error)) *Cursor {
	return &Cursor{coll: coll, filter: filter, pred: pred, limit: coll.db.defaultLimit}
}

// with copies the immutable query parameters into a fresh INIT cursor.
func (c *Cursor) with() *Cursor {
	clone := &Cursor{
		coll:      c.coll,
		filter:    c.filter,
		pred:      c.pred,
		skip:      c.skip,
		limit:     c.limit,
		sortField: c.sortField,
		sortDesc:  c.sortDesc,
		hint:      c.hint,
	}
	clone.transforms = append([]TransformFunc(nil), c.transforms...)
	return clone
}

// Skip returns a new cursor that silently consumes the first n surviving
// documents. Skipping is counted after predicate filtering.
func (c *Cursor) Skip(n int) *Cursor {
	next := c.with()
	next.skip = n
	return next
}

// Limit returns a new cursor yielding at most n documents. Zero means
// unlimited.
func (c *Cursor) Limit(n int) *Cursor {
	next := c.with()
	next.limit = n
	return next
}

// Sort returns a new cursor with a store-side sort on a top-level field.
func (c *Cursor) Sort(field string, desc bool) *Cursor {
	next := c.with()
	next.sortField = field
	next.sortDesc = desc
	return next
}

// Hint returns a new cursor carrying an index hint for the store.
func (c *Cursor) Hint(hint string) *Cursor {
	next := c.with()
	next.hint = hint
	return next
}

// Map returns a new cursor with an extra transform stage appended to the
// pipeline. Stages run in registration order on every surviving document.
func (c *Cursor) Map(t TransformFunc) *Cursor {
	next := c.with()
	next.transforms = append(next.transforms, t)
	return next
}

func (c *Cursor) open(ctx context.Context) bool {
	opts := store.Options{SortField: c.sortField, SortDesc: c.sortDesc, Hint: c.hint}
	stream, err := c.coll.db.driver.OpenResultStream(ctx, c.coll.name, c.filter, opts)
	if err != nil {
		c.err = err
		c.phase = phaseClosed
		return false
	}
	c.stream = stream
	c.phase = phaseActive
	metrics.CursorsOpen.Inc()
	return true
}

func (c *Cursor) releaseStream() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
		metrics.CursorsOpen.Dec()
	}
}

// exhaust releases the store resource exactly as Close would, but leaves the
// cursor in EXHAUSTED so Current stays readable.
func (c *Cursor) exhaust() {
	c.releaseStream()
	c.phase = phaseExhausted
}

// fail surfaces a stream failure on the in-flight pull and closes the cursor.
// No partial document is considered yielded.
func (c *Cursor) fail(err error) {
	c.err = err
	c.releaseStream()
	c.phase = phaseClosed
}

// Next pulls the next surviving document, reporting false on exhaustion,
// limit, close, or failure. Check Err after a false return to distinguish
// exhaustion from failure. The yielded document is available via Current.
func (c *Cursor) Next(ctx context.Context) bool {
	switch c.phase {
	case phaseClosed:
		if c.err == nil {
			c.err = ErrCursorClosed
		}
		return false
	case phaseExhausted:
		return false
	case phaseInit:
		if !c.open(ctx) {
			return false
		}
	}
	if c.limit > 0 && c.yielded >= c.limit {
		c.exhaust()
		return false
	}

	for {
		wire, err := c.stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			c.exhaust()
			return false
		}
		if err != nil {
			c.fail(err)
			return false
		}

		doc, err := codec.DecodeDocument(wire)
		if err != nil {
			c.fail(err)
			return false
		}

		// Predicate mode: non-matching documents are discarded without
		// counting toward skip or limit.
		if c.pred != nil {
			ok, perr := c.pred(doc)
			if perr != nil {
				c.fail(perr)
				return false
			}
			if !ok {
				continue
			}
		}

		absent := false
		for _, t := range c.transforms {
			out, ok := t(doc)
			if !ok {
				absent = true
				break
			}
			doc = out
		}
		if absent {
			c.Close()
			return false
		}

		if c.skipped < c.skip {
			c.skipped++
			continue
		}

		c.current = doc
		c.yielded++
		metrics.CursorDocumentsTotal.Inc()
		if c.limit > 0 && c.yielded >= c.limit {
			c.exhaust()
		}
		return true
	}
}

// Current returns the document yielded by the last successful Next.
func (c *Cursor) Current() Document {
	return c.current
}

// Err returns the failure that stopped the cursor, if any. Natural exhaustion
// leaves it nil.
func (c *Cursor) Err() error {
	return c.err
}

// HasNext reports whether another pull would yield a document. It never
// advances the observable position: it probes via an independent clone
// advanced past the current yielded count.
func (c *Cursor) HasNext(ctx context.Context) (bool, error) {
	if c.phase == phaseClosed {
		return false, ErrCursorClosed
	}
	if c.phase == phaseExhausted {
		return false, nil
	}
	probe := c.Clone()
	defer probe.Close()
	for i := 0; i <= c.yielded; i++ {
		if !probe.Next(ctx) {
			return false, probe.Err()
		}
	}
	return true, nil
}

// ToArray drains the cursor into a slice and closes it.
func (c *Cursor) ToArray(ctx context.Context) ([]Document, error) {
	defer c.Close()
	var docs []Document
	for c.Next(ctx) {
		docs = append(docs, c.Current())
	}
	if c.err != nil {
		return nil, c.err
	}
	return docs, nil
}

// Count fully drains an independent clone and returns the number of
// documents it yields. Always an exact count, never an estimate; the calling
// cursor's position is untouched.
func (c *Cursor) Count(ctx context.Context) (int, error) {
	probe := c.Clone()
	defer probe.Close()
	n := 0
	for probe.Next(ctx) {
		n++
	}
	if err := probe.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// Clone produces a fresh cursor that re-issues the original query against the
// store with counters reset. It never replays already-seen documents from
// memory.
func (c *Cursor) Clone() *Cursor {
	return c.with()
}

// Rewind resets the cursor's counters and re-issues the query on the next
// pull, keeping every configured parameter. A closed cursor cannot rewind.
func (c *Cursor) Rewind() error {
	if c.phase == phaseClosed {
		return ErrCursorClosed
	}
	c.releaseStream()
	c.phase = phaseInit
	c.skipped = 0
	c.yielded = 0
	c.current = nil
	c.err = nil
	return nil
}

// Close releases the store resource and moves the cursor to its terminal
// state. Safe to call from any state, any number of times.
func (c *Cursor) Close() error {
	c.releaseStream()
	c.phase = phaseClosed
	return nil
}
