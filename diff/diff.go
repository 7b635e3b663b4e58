// Package diff computes path-addressed change-sets between two states of a
// document and renders them as the store's native update operations.
//
// Ordered containers (sequences, sets, ordered maps) are compared up to their
// first divergence point; everything from that index on is rewritten by a
// single positional splice. Interior insertions and deletions therefore cost a
// tail rewrite rather than a longest-common-subsequence patch. That is the
// wire contract, not an oversight: a single positional operation is what the
// store can apply atomically.
package diff

import (
	"errors"
	"fmt"

	"github.com/neisanworks/neisan-mongo/codec"
)

// Update operation kinds, as they appear in a rendered update document.
const (
	OpSet    = "$set"
	OpUnset  = "$unset"
	OpSplice = "$splice"
)

// ErrRootUnset is returned when the after-state of a whole document is absent.
// The root is never unset; deleting a document is a separate operation.
var ErrRootUnset = errors.New("diff: document root cannot be unset")

// Splice rewrites the tail of an ordered container: the elements of Items
// replace everything from Position on, and the container is truncated to
// TruncateTo elements. Tag identifies the container kind on the wire
// (codec.TagSet, codec.TagMap, or empty for a plain sequence). Items are
// already wire-encoded.
type Splice struct {
	Tag        string
	Items      []any
	Position   int
	TruncateTo int
}

// ChangeSet maps operation kinds to dot-delimited field paths. A path appears
// under at most one kind, and the identifier field never appears at all. The
// zero value is an empty change-set.
type ChangeSet struct {
	Set    map[string]any
	Unset  map[string]string
	Splice map[string]Splice
}

// Empty reports whether no update is necessary. Callers must treat an empty
// change-set as a distinct, non-error outcome.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Set) == 0 && len(cs.Unset) == 0 && len(cs.Splice) == 0
}

func (cs *ChangeSet) setEncoded(path string, v any) error {
	enc, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("diff: encode %q: %w", path, err)
	}
	if cs.Set == nil {
		cs.Set = make(map[string]any)
	}
	cs.Set[path] = enc
	return nil
}

func (cs *ChangeSet) unset(path string) {
	if cs.Unset == nil {
		cs.Unset = make(map[string]string)
	}
	cs.Unset[path] = ""
}

func (cs *ChangeSet) splice(path string, sp Splice) {
	if cs.Splice == nil {
		cs.Splice = make(map[string]Splice)
	}
	cs.Splice[path] = sp
}

// UpdateDocument renders the change-set as the store's native update-operation
// shape. Empty operation kinds are omitted.
func (cs *ChangeSet) UpdateDocument() map[string]any {
	update := make(map[string]any, 3)
	if len(cs.Set) > 0 {
		set := make(map[string]any, len(cs.Set))
		for path, v := range cs.Set {
			set[path] = v
		}
		update[OpSet] = set
	}
	if len(cs.Unset) > 0 {
		unset := make(map[string]any, len(cs.Unset))
		for path, v := range cs.Unset {
			unset[path] = v
		}
		update[OpUnset] = unset
	}
	if len(cs.Splice) > 0 {
		splices := make(map[string]any, len(cs.Splice))
		for path, sp := range cs.Splice {
			splices[path] = map[string]any{
				"tag":        sp.Tag,
				"items":      sp.Items,
				"position":   sp.Position,
				"truncateTo": sp.TruncateTo,
			}
		}
		update[OpSplice] = splices
	}
	return update
}

// Diff computes the minimal change-set that moves before to after. Paths are
// rooted at prefix (normally empty). The identifier field is skipped: it never
// changes and never appears in a change-set.
func Diff(prefix string, before, after codec.Document) (*ChangeSet, error) {
	if after == nil {
		return nil, ErrRootUnset
	}
	if before == nil {
		before = codec.Document{}
	}
	cs := &ChangeSet{}
	if err := cs.diffKeyed(prefix, before, after, true); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *ChangeSet) diffKeyed(prefix string, before, after map[string]any, root bool) error {
	for k := range before {
		if root && k == codec.IDField {
			continue
		}
		if _, ok := after[k]; !ok {
			cs.unset(joinPath(prefix, k))
		}
	}
	for k, av := range after {
		if root && k == codec.IDField {
			continue
		}
		path := joinPath(prefix, k)
		bv, ok := before[k]
		if !ok {
			// Newly added field: a full set, even if the value is null.
			if err := cs.setEncoded(path, av); err != nil {
				return err
			}
			continue
		}
		if err := cs.diffValue(path, bv, av); err != nil {
			return err
		}
	}
	return nil
}

func (cs *ChangeSet) diffValue(path string, before, after any) error {
	if codec.Equal(before, after) {
		return nil
	}

	switch a := after.(type) {
	case *codec.Set:
		b, ok := before.(*codec.Set)
		if !ok {
			return cs.setEncoded(path, after)
		}
		return cs.spliceSet(path, b, a)
	case *codec.OrderedMap:
		b, ok := before.(*codec.OrderedMap)
		if !ok {
			return cs.setEncoded(path, after)
		}
		return cs.spliceMap(path, b, a)
	case []any:
		b, ok := before.([]any)
		if !ok {
			return cs.setEncoded(path, after)
		}
		return cs.spliceSeq(path, b, a)
	}

	am, aok := asKeyed(after)
	bm, bok := asKeyed(before)
	if aok && bok {
		return cs.diffKeyed(path, bm, am, false)
	}

	// Primitives, instants, binary, or a fundamental kind change.
	return cs.setEncoded(path, after)
}

// spliceSet compares the fixed iteration orders of two sets element by element
// and rewrites after's tail from the first divergence.
func (cs *ChangeSet) spliceSet(path string, before, after *codec.Set) error {
	i := divergence(before.Items(), after.Items())
	items, err := encodeAll(after.Items()[i:])
	if err != nil {
		return fmt.Errorf("diff: encode %q: %w", path, err)
	}
	cs.splice(path, Splice{
		Tag:        codec.TagSet,
		Items:      items,
		Position:   i,
		TruncateTo: after.Len(),
	})
	return nil
}

func (cs *ChangeSet) spliceMap(path string, before, after *codec.OrderedMap) error {
	bp, ap := before.Pairs(), after.Pairs()
	i := 0
	for i < len(bp) && i < len(ap) {
		if !codec.Equal(bp[i].Key, ap[i].Key) || !codec.Equal(bp[i].Value, ap[i].Value) {
			break
		}
		i++
	}
	items := make([]any, 0, len(ap)-i)
	for _, p := range ap[i:] {
		k, err := codec.Encode(p.Key)
		if err != nil {
			return fmt.Errorf("diff: encode %q: %w", path, err)
		}
		v, err := codec.Encode(p.Value)
		if err != nil {
			return fmt.Errorf("diff: encode %q: %w", path, err)
		}
		items = append(items, []any{k, v})
	}
	cs.splice(path, Splice{
		Tag:        codec.TagMap,
		Items:      items,
		Position:   i,
		TruncateTo: after.Len(),
	})
	return nil
}

func (cs *ChangeSet) spliceSeq(path string, before, after []any) error {
	i := divergence(before, after)
	items, err := encodeAll(after[i:])
	if err != nil {
		return fmt.Errorf("diff: encode %q: %w", path, err)
	}
	cs.splice(path, Splice{
		Items:      items,
		Position:   i,
		TruncateTo: len(after),
	})
	return nil
}

// divergence returns the first index where the two slices differ, counting
// "past the end" of the shorter slice as a difference.
func divergence(before, after []any) int {
	i := 0
	for i < len(before) && i < len(after) {
		if !codec.Equal(before[i], after[i]) {
			return i
		}
		i++
	}
	return i
}

func encodeAll(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		enc, err := codec.Encode(item)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func asKeyed(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case codec.Document:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}
