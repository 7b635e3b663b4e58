package codec

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Equal reports structural equality of two values. Numbers compare by value
// regardless of Go type (a decoded float64(3) equals int(3)), sets and ordered
// maps compare by their fixed iteration order, and plain keyed collections
// compare key-wise.
func Equal(a, b any) bool {
	return fingerprint(a) == fingerprint(b)
}

// fingerprint renders a value into a canonical string. Two values are
// structurally equal iff their fingerprints match.
func fingerprint(v any) string {
	var b strings.Builder
	writeFingerprint(&b, v)
	return b.String()
}

func writeFingerprint(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("z")
	case bool:
		if val {
			b.WriteString("T")
		} else {
			b.WriteString("F")
		}
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Quote(val))
	case ID:
		b.WriteString("i:")
		b.WriteString(string(val))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(val.UTC().Format(time.RFC3339Nano))
	case []byte:
		b.WriteString("b:")
		b.WriteString(base64.StdEncoding.EncodeToString(val))
	case []any:
		b.WriteString("a[")
		for _, item := range val {
			writeFingerprint(b, item)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case *Set:
		b.WriteString("u[")
		for _, item := range val.Items() {
			writeFingerprint(b, item)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case *OrderedMap:
		b.WriteString("o[")
		for _, p := range val.Pairs() {
			writeFingerprint(b, p.Key)
			b.WriteByte('=')
			writeFingerprint(b, p.Value)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case Document:
		writeMapFingerprint(b, val)
	case map[string]any:
		writeMapFingerprint(b, val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			writeNumber(b, f)
		} else {
			b.WriteString("s:")
			b.WriteString(strconv.Quote(val.String()))
		}
	default:
		if f, ok := toFloat(v); ok {
			writeNumber(b, f)
		} else {
			// Unknown kinds fall back to their formatted form.
			b.WriteString("x:")
			b.WriteString(strconv.Quote(formatAny(v)))
		}
	}
}

func writeMapFingerprint(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("m{")
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		writeFingerprint(b, m[k])
		b.WriteByte(',')
	}
	b.WriteByte('}')
}

func writeNumber(b *strings.Builder, f float64) {
	b.WriteString("n:")
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func formatAny(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(data)
}
