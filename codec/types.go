// Package codec transcodes extended in-memory values (unordered sets, ordered
// maps, instants, binary blobs) to and from the primitive-only wire
// representation understood by the document store.
//
// Extended values are carried on the wire as single-key objects whose key is a
// reserved tag (TagSet, TagMap, TagTime, TagBin). These tags and the identifier
// field name are the persisted-format contract: application fields must not
// reuse them.
package codec

import "time"

// Document represents a decoded document: a keyed collection of values.
type Document map[string]any

// ID is a unique-identifier reference to another document. It passes through
// encoding and decoding unchanged.
type ID string

// IDField is the identifier field of every stored document. It is never
// transformed by the codec and never appears in a change-set.
const IDField = "_id"

// GetID returns the document identifier if present.
func (d Document) GetID() (ID, bool) {
	v, ok := d[IDField]
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return ID(id), true
	case ID:
		return id, true
	}
	return "", false
}

// SetID sets the document identifier.
func (d Document) SetID(id ID) {
	d[IDField] = string(id)
}

// Clone creates a deep copy of the document.
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = CloneValue(v)
	}
	return clone
}

// CloneValue creates a deep copy of a value, including extended kinds.
func CloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		return Document(val).Clone()
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = CloneValue(item)
		}
		return cp
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp
	case *Set:
		return val.Clone()
	case *OrderedMap:
		return val.Clone()
	default:
		// Primitives, time.Time and ID are copied by value.
		return val
	}
}

// Set is an unordered collection of distinct values. Membership is decided by
// structural equality; iteration order is the insertion order, which is the
// "fixed iteration order" the differ compares element by element.
type Set struct {
	items []any
	index map[string]int
}

// NewSet builds a set from the given members, collapsing duplicates.
func NewSet(items ...any) *Set {
	s := &Set{index: make(map[string]int, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts a value. It reports whether the value was newly added.
func (s *Set) Add(v any) bool {
	fp := fingerprint(v)
	if _, ok := s.index[fp]; ok {
		return false
	}
	s.index[fp] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Has reports whether a structurally equal value is a member.
func (s *Set) Has(v any) bool {
	_, ok := s.index[fingerprint(v)]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the members in iteration order. The slice is shared; callers
// must not mutate it.
func (s *Set) Items() []any {
	return s.items
}

// Clone creates a deep copy of the set, preserving iteration order.
func (s *Set) Clone() *Set {
	clone := &Set{
		items: make([]any, len(s.items)),
		index: make(map[string]int, len(s.index)),
	}
	for i, item := range s.items {
		clone.items[i] = CloneValue(item)
	}
	for fp, i := range s.index {
		clone.index[fp] = i
	}
	return clone
}

// Pair is a single entry of an OrderedMap.
type Pair struct {
	Key   any
	Value any
}

// OrderedMap is a mapping whose entries keep their insertion order. Keys may
// be arbitrary values; key equality is structural.
type OrderedMap struct {
	pairs []Pair
	index map[string]int
}

// NewOrderedMap builds an ordered map, optionally from initial pairs.
func NewOrderedMap(pairs ...Pair) *OrderedMap {
	m := &OrderedMap{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Set inserts a new entry or updates an existing one in place.
func (m *OrderedMap) Set(key, value any) {
	fp := fingerprint(key)
	if i, ok := m.index[fp]; ok {
		m.pairs[i].Value = value
		return
	}
	m.index[fp] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
}

// Get returns the value stored under a structurally equal key.
func (m *OrderedMap) Get(key any) (any, bool) {
	i, ok := m.index[fingerprint(key)]
	if !ok {
		return nil, false
	}
	return m.pairs[i].Value, true
}

// Delete removes the entry for the key, preserving the order of the rest.
func (m *OrderedMap) Delete(key any) bool {
	fp := fingerprint(key)
	i, ok := m.index[fp]
	if !ok {
		return false
	}
	m.pairs = append(m.pairs[:i], m.pairs[i+1:]...)
	delete(m.index, fp)
	for j := i; j < len(m.pairs); j++ {
		m.index[fingerprint(m.pairs[j].Key)] = j
	}
	return true
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.pairs)
}

// Pairs returns the entries in iteration order. The slice is shared; callers
// must not mutate it.
func (m *OrderedMap) Pairs() []Pair {
	return m.pairs
}

// Clone creates a deep copy of the map, preserving iteration order.
func (m *OrderedMap) Clone() *OrderedMap {
	clone := &OrderedMap{
		pairs: make([]Pair, len(m.pairs)),
		index: make(map[string]int, len(m.index)),
	}
	for i, p := range m.pairs {
		clone.pairs[i] = Pair{Key: CloneValue(p.Key), Value: CloneValue(p.Value)}
	}
	for fp, i := range m.index {
		clone.index[fp] = i
	}
	return clone
}

// Instant is the in-memory temporal kind. Kept as an alias so call sites read
// uniformly with the other extended kinds.
type Instant = time.Time
