package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Reserved wire tag keys. A wire object whose single key is one of these
// carries an extended value; decode fails closed on any other use of them.
const (
	TagSet  = "$uset"
	TagMap  = "$omap"
	TagTime = "$time"
	TagBin  = "$bin"
)

// ErrMalformedTag is returned when a reserved tag key is found with an
// unexpected payload shape during decode. It is fatal to that decode call.
var ErrMalformedTag = errors.New("codec: malformed tag payload")

var tagKeys = map[string]bool{
	TagSet:  true,
	TagMap:  true,
	TagTime: true,
	TagBin:  true,
}

// Encode maps an in-memory value tree onto a wire-safe, primitive-only tree.
// Extended kinds become single-key tagged objects; everything the wire format
// natively supports passes through unchanged. The identifier field of a keyed
// collection is never transformed or recursed into.
func Encode(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, nil
	case ID:
		return val, nil
	case time.Time:
		return map[string]any{TagTime: val.UTC().Format(time.RFC3339Nano)}, nil
	case []byte:
		return map[string]any{TagBin: base64.StdEncoding.EncodeToString(val)}, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			enc, err := Encode(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case *Set:
		items := val.Items()
		out := make([]any, len(items))
		for i, item := range items {
			enc, err := Encode(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return map[string]any{TagSet: out}, nil
	case *OrderedMap:
		pairs := val.Pairs()
		out := make([]any, len(pairs))
		for i, p := range pairs {
			k, err := Encode(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := Encode(p.Value)
			if err != nil {
				return nil, err
			}
			out[i] = []any{k, v}
		}
		return map[string]any{TagMap: out}, nil
	case Document:
		return encodeMap(val)
	case map[string]any:
		return encodeMap(val)
	default:
		return nil, fmt.Errorf("codec: unsupported value type %T", v)
	}
}

func encodeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == IDField {
			out[k] = v
			continue
		}
		enc, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// EncodeDocument encodes a document for storage.
func EncodeDocument(d Document) (map[string]any, error) {
	return encodeMap(d)
}

// Decode reverses Encode by inspecting the shape of each wire node. Tagged
// single-key objects become their extended kinds; a reserved tag key with a
// payload of the wrong shape, or mixed with other keys, yields ErrMalformedTag.
func Decode(w any) (any, error) {
	switch val := w.(type) {
	case map[string]any:
		return decodeMap(val)
	case Document:
		return decodeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			dec, err := Decode(item)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	default:
		return val, nil
	}
}

func decodeMap(m map[string]any) (any, error) {
	if len(m) == 1 {
		for k, payload := range m {
			if tagKeys[k] {
				return decodeTagged(k, payload)
			}
		}
	}
	out := make(Document, len(m))
	for k, v := range m {
		if tagKeys[k] {
			// Reserved keys only appear as the single key of a tagged
			// wrapper. Anything else is a corrupt document.
			return nil, fmt.Errorf("%w: reserved key %q in multi-key object", ErrMalformedTag, k)
		}
		if k == IDField {
			out[k] = v
			continue
		}
		dec, err := Decode(v)
		if err != nil {
			return nil, err
		}
		out[k] = dec
	}
	return out, nil
}

func decodeTagged(tag string, payload any) (any, error) {
	switch tag {
	case TagSet:
		seq, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s payload is %T, want sequence", ErrMalformedTag, tag, payload)
		}
		// Duplicate encoded members collapse: set semantics.
		set := NewSet()
		for _, item := range seq {
			dec, err := Decode(item)
			if err != nil {
				return nil, err
			}
			set.Add(dec)
		}
		return set, nil
	case TagMap:
		seq, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s payload is %T, want sequence", ErrMalformedTag, tag, payload)
		}
		om := NewOrderedMap()
		for _, item := range seq {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("%w: %s entry is not a key/value pair", ErrMalformedTag, tag)
			}
			k, err := Decode(pair[0])
			if err != nil {
				return nil, err
			}
			v, err := Decode(pair[1])
			if err != nil {
				return nil, err
			}
			om.Set(k, v)
		}
		return om, nil
	case TagTime:
		str, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s payload is %T, want string", ErrMalformedTag, tag, payload)
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return nil, fmt.Errorf("%w: %s payload %q: %v", ErrMalformedTag, tag, str, err)
		}
		return t, nil
	case TagBin:
		str, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s payload is %T, want string", ErrMalformedTag, tag, payload)
		}
		data, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			return nil, fmt.Errorf("%w: %s payload is not base64: %v", ErrMalformedTag, tag, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedTag, tag)
}

// DecodeDocument decodes a stored wire document.
func DecodeDocument(w map[string]any) (Document, error) {
	dec, err := decodeMap(w)
	if err != nil {
		return nil, err
	}
	doc, ok := dec.(Document)
	if !ok {
		return nil, fmt.Errorf("%w: document root is a tagged value", ErrMalformedTag)
	}
	return doc, nil
}
