package diff

import (
	"fmt"

	"github.com/neisanworks/neisan-mongo/codec"
)

// CloneWire deep-copies a wire value tree (objects, sequences, primitives).
func CloneWire(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = CloneWire(item)
		}
		return cp
	case codec.Document:
		return CloneWire(map[string]any(val))
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = CloneWire(item)
		}
		return cp
	default:
		return val
	}
}

// ApplyUpdate applies a rendered update document to a stored wire document and
// returns the updated copy. The input document is not mutated. Store drivers
// use this to execute findOneAndUpdate; it operates purely on wire values and
// never decodes.
func ApplyUpdate(wire map[string]any, update map[string]any) (map[string]any, error) {
	doc := CloneWire(wire).(map[string]any)

	if unset, ok := update[OpUnset].(map[string]any); ok {
		for path := range unset {
			deletePath(doc, path)
		}
	}
	if set, ok := update[OpSet].(map[string]any); ok {
		for path, v := range set {
			setPath(doc, path, v)
		}
	}
	if splices, ok := update[OpSplice].(map[string]any); ok {
		for path, raw := range splices {
			sp, err := spliceFromWire(raw)
			if err != nil {
				return nil, fmt.Errorf("diff: splice at %q: %w", path, err)
			}
			if err := applySplice(doc, path, sp); err != nil {
				return nil, fmt.Errorf("diff: splice at %q: %w", path, err)
			}
		}
	}
	return doc, nil
}

func spliceFromWire(raw any) (Splice, error) {
	switch v := raw.(type) {
	case Splice:
		return v, nil
	case map[string]any:
		sp := Splice{}
		if tag, ok := v["tag"].(string); ok {
			sp.Tag = tag
		}
		items, ok := v["items"].([]any)
		if !ok {
			return sp, fmt.Errorf("items payload is %T, want sequence", v["items"])
		}
		sp.Items = items
		pos, ok := toInt(v["position"])
		if !ok {
			return sp, fmt.Errorf("position is %T, want integer", v["position"])
		}
		sp.Position = pos
		trunc, ok := toInt(v["truncateTo"])
		if !ok {
			return sp, fmt.Errorf("truncateTo is %T, want integer", v["truncateTo"])
		}
		sp.TruncateTo = trunc
		return sp, nil
	}
	return Splice{}, fmt.Errorf("payload is %T, want object", raw)
}

// applySplice splices the tail of the ordered container stored at path:
// elements from Position on are replaced by Items and the container is
// truncated to TruncateTo elements.
func applySplice(doc map[string]any, path string, sp Splice) error {
	current, ok := getPath(doc, path)
	if !ok {
		return fmt.Errorf("no value at path")
	}

	var seq []any
	if sp.Tag == "" {
		seq, ok = current.([]any)
		if !ok {
			return fmt.Errorf("value is %T, want sequence", current)
		}
	} else {
		wrapper, ok := current.(map[string]any)
		if !ok {
			return fmt.Errorf("value is %T, want tagged %s wrapper", current, sp.Tag)
		}
		seq, ok = wrapper[sp.Tag].([]any)
		if !ok {
			return fmt.Errorf("tagged %s payload is %T, want sequence", sp.Tag, wrapper[sp.Tag])
		}
	}

	if sp.Position < 0 || sp.Position > len(seq) {
		return fmt.Errorf("position %d out of range for %d elements", sp.Position, len(seq))
	}

	spliced := make([]any, 0, sp.TruncateTo)
	spliced = append(spliced, seq[:sp.Position]...)
	spliced = append(spliced, sp.Items...)
	if len(spliced) > sp.TruncateTo {
		spliced = spliced[:sp.TruncateTo]
	}

	if sp.Tag == "" {
		setPath(doc, path, spliced)
	} else {
		setPath(doc, path, map[string]any{sp.Tag: spliced})
	}
	return nil
}

// Apply executes the change-set against an in-memory before-state and returns
// the resulting document. It is the reference implementation of the output
// guarantee: Apply(before, Diff(before, after)) is structurally equal to
// after. It works by encoding, applying the rendered update, and decoding.
func Apply(before codec.Document, cs *ChangeSet) (codec.Document, error) {
	wire, err := codec.EncodeDocument(before)
	if err != nil {
		return nil, err
	}
	updated, err := ApplyUpdate(wire, cs.UpdateDocument())
	if err != nil {
		return nil, err
	}
	return codec.DecodeDocument(updated)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
