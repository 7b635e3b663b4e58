package store

import (
	"context"
	"sort"
	"sync"

	"github.com/neisanworks/neisan-mongo/codec"
	"github.com/neisanworks/neisan-mongo/diff"
	"github.com/neisanworks/neisan-mongo/internal/query"
)

// Memory is an in-process Driver. It keeps wire documents in maps and is the
// default backend for tests and embedded use.
type Memory struct {
	mu     sync.RWMutex
	colls  map[string]map[string]map[string]any // collection -> id -> wire doc
	unique map[string]map[string]bool           // collection -> unique fields
	order  map[string][]string                  // collection -> insertion order of ids
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		colls:  make(map[string]map[string]map[string]any),
		unique: make(map[string]map[string]bool),
		order:  make(map[string][]string),
	}
}

func (m *Memory) collection(name string) map[string]map[string]any {
	coll, ok := m.colls[name]
	if !ok {
		coll = make(map[string]map[string]any)
		m.colls[name] = coll
	}
	return coll
}

func (m *Memory) EnsureUnique(ctx context.Context, collection, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.unique[collection]
	if !ok {
		fields = make(map[string]bool)
		m.unique[collection] = fields
	}
	fields[field] = true
	return nil
}

// checkUnique scans the collection for another document carrying the same
// value on any unique field. Caller holds the lock.
func (m *Memory) checkUnique(collection, id string, doc map[string]any) error {
	fields := m.unique[collection]
	if len(fields) == 0 {
		return nil
	}
	for field := range fields {
		val, ok := doc[field]
		if !ok {
			continue
		}
		for otherID, other := range m.collection(collection) {
			if otherID == id {
				continue
			}
			if ov, ok := other[field]; ok && codec.Equal(ov, val) {
				return &ConflictError{Field: field, Value: val}
			}
		}
	}
	return nil
}

func (m *Memory) InsertOne(ctx context.Context, collection string, doc map[string]any) (InsertResult, error) {
	id, _ := doc[codec.IDField].(string)

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	if _, exists := coll[id]; exists {
		return InsertResult{}, ErrDuplicateID
	}
	if err := m.checkUnique(collection, id, doc); err != nil {
		return InsertResult{}, err
	}
	coll[id] = diff.CloneWire(doc).(map[string]any)
	m.order[collection] = append(m.order[collection], id)
	return InsertResult{Acknowledged: true}, nil
}

func (m *Memory) FindOneAndUpdate(ctx context.Context, collection, id string, update map[string]any) (UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	current, ok := coll[id]
	if !ok {
		return UpdateResult{Acknowledged: true, Document: nil}, nil
	}
	updated, err := diff.ApplyUpdate(current, update)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := m.checkUnique(collection, id, updated); err != nil {
		return UpdateResult{}, err
	}
	coll[id] = updated
	return UpdateResult{Acknowledged: true, Document: diff.CloneWire(updated).(map[string]any)}, nil
}

func (m *Memory) DeleteOne(ctx context.Context, collection, id string) (DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	if _, ok := coll[id]; !ok {
		return DeleteResult{Acknowledged: true, Found: false}, nil
	}
	delete(coll, id)
	ids := m.order[collection]
	for i, existing := range ids {
		if existing == id {
			m.order[collection] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return DeleteResult{Acknowledged: true, Found: true}, nil
}

func (m *Memory) OpenResultStream(ctx context.Context, collection string, filter map[string]any, opts Options) (Stream, error) {
	matcher, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	coll := m.colls[collection]
	snapshot := make([]map[string]any, 0, len(coll))
	for _, id := range m.order[collection] {
		doc, ok := coll[id]
		if !ok {
			continue
		}
		if matcher.Matches(doc) {
			snapshot = append(snapshot, diff.CloneWire(doc).(map[string]any))
		}
	}
	m.mu.RUnlock()

	sortDocs(snapshot, opts)
	return &sliceStream{docs: snapshot}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colls = make(map[string]map[string]map[string]any)
	m.order = make(map[string][]string)
	return nil
}

// sortDocs orders a snapshot by the requested sort field. Documents are
// otherwise left in store delivery order.
func sortDocs(docs []map[string]any, opts Options) {
	if opts.SortField == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := query.Compare(docs[i][opts.SortField], docs[j][opts.SortField])
		if opts.SortDesc {
			return c > 0
		}
		return c < 0
	})
}
