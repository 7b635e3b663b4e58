package codec

import (
	"errors"
	"testing"
	"time"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	wire, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	dec, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !Equal(v, dec) {
		t.Fatalf("round trip mismatch: original %v, decoded %v", v, dec)
	}
	return dec
}

func TestRoundTripPrimitives(t *testing.T) {
	roundTrip(t, "hello")
	roundTrip(t, float64(42.5))
	roundTrip(t, true)
	roundTrip(t, nil)
	roundTrip(t, ID("user-1"))
	roundTrip(t, []byte{0x00, 0xFF, 0x10})
	roundTrip(t, time.Date(2024, 3, 1, 12, 30, 0, 999, time.UTC))
}

func TestRoundTripDocument(t *testing.T) {
	doc := Document{
		"_id":   "u1",
		"email": "a@x.com",
		"tags":  NewSet(float64(1), float64(2), float64(3)),
		"history": []any{
			Document{"at": time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), "event": "signup"},
		},
		"prefs": NewOrderedMap(
			Pair{Key: "theme", Value: "dark"},
			Pair{Key: "lang", Value: "en"},
		),
		"avatar": []byte("binary-data"),
	}

	wire, err := EncodeDocument(doc)
	if err != nil {
		t.Fatal(err)
	}

	// The identifier passes through untransformed.
	if wire["_id"] != "u1" {
		t.Errorf("expected _id passthrough, got %v", wire["_id"])
	}

	// Sets become tagged wrappers.
	tagged, ok := wire["tags"].(map[string]any)
	if !ok {
		t.Fatalf("expected tagged set, got %T", wire["tags"])
	}
	if _, ok := tagged[TagSet].([]any); !ok {
		t.Fatalf("expected %s payload to be a sequence", TagSet)
	}

	dec, err := DecodeDocument(wire)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(doc, dec) {
		t.Fatalf("document round trip mismatch:\noriginal %v\ndecoded  %v", doc, dec)
	}
}

func TestRoundTripNestedExtended(t *testing.T) {
	// Sets of maps and maps of sets, plus empty collections, at depth.
	inner := NewOrderedMap(Pair{Key: "k", Value: NewSet("a", "b")})
	doc := Document{
		"setOfMaps": NewSet(
			NewOrderedMap(Pair{Key: float64(1), Value: "one"}),
			NewOrderedMap(Pair{Key: float64(2), Value: "two"}),
		),
		"mapOfSets": inner,
		"emptySet":  NewSet(),
		"emptyMap":  NewOrderedMap(),
		"deep": Document{
			"nested": Document{
				"times": []any{time.Unix(0, 0).UTC(), time.Unix(1000, 0).UTC()},
			},
		},
	}
	roundTrip(t, doc)
}

func TestDecodeDeduplicatesSetMembers(t *testing.T) {
	wire := map[string]any{TagSet: []any{float64(1), float64(2), float64(2), float64(3)}}
	dec, err := Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	set, ok := dec.(*Set)
	if !ok {
		t.Fatalf("expected *Set, got %T", dec)
	}
	if set.Len() != 3 {
		t.Errorf("expected 3 distinct members, got %d", set.Len())
	}
}

func TestDecodeMalformedTags(t *testing.T) {
	cases := []map[string]any{
		{TagSet: "not-a-sequence"},
		{TagMap: map[string]any{"a": 1}},
		{TagMap: []any{[]any{"only-key"}}},
		{TagTime: float64(12345)},
		{TagTime: "not-a-timestamp"},
		{TagBin: float64(1)},
		{TagBin: "!!! not base64 !!!"},
		{TagSet: []any{}, "other": "field"},
	}
	for i, wire := range cases {
		if _, err := Decode(wire); !errors.Is(err, ErrMalformedTag) {
			t.Errorf("case %d: expected ErrMalformedTag, got %v", i, err)
		}
	}
}

func TestEqualNumericCoercion(t *testing.T) {
	if !Equal(int(3), float64(3)) {
		t.Error("expected int 3 to equal float64 3")
	}
	if Equal(int(3), float64(3.5)) {
		t.Error("expected 3 != 3.5")
	}
	if Equal("3", float64(3)) {
		t.Error("expected string \"3\" != number 3")
	}
}

func TestSetSemantics(t *testing.T) {
	s := NewSet("a", "b", "a")
	if s.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", s.Len())
	}
	if !s.Has("a") || s.Has("c") {
		t.Error("membership check failed")
	}
	if s.Add("b") {
		t.Error("re-adding an existing member should report false")
	}
	// Structural membership: equal nested documents collapse.
	nested := NewSet(Document{"x": float64(1)}, Document{"x": float64(1)})
	if nested.Len() != 1 {
		t.Errorf("expected structural dedupe, got %d members", nested.Len())
	}
}

func TestOrderedMapSemantics(t *testing.T) {
	m := NewOrderedMap()
	m.Set("a", float64(1))
	m.Set("b", float64(2))
	m.Set("a", float64(3)) // update in place, order kept

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if v, _ := m.Get("a"); !Equal(v, float64(3)) {
		t.Errorf("expected updated value 3, got %v", v)
	}
	pairs := m.Pairs()
	if pairs[0].Key != "a" || pairs[1].Key != "b" {
		t.Errorf("iteration order not preserved: %v", pairs)
	}

	if !m.Delete("a") {
		t.Error("expected Delete to find entry")
	}
	if m.Len() != 1 || m.Pairs()[0].Key != "b" {
		t.Errorf("unexpected state after delete: %v", m.Pairs())
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{
		"_id":  "d1",
		"tags": NewSet("a"),
		"sub":  Document{"n": float64(1)},
	}
	clone := doc.Clone()
	clone["sub"].(Document)["n"] = float64(2)
	clone["tags"].(*Set).Add("b")

	if !Equal(doc["sub"].(Document)["n"], float64(1)) {
		t.Error("clone mutation leaked into original subdocument")
	}
	if doc["tags"].(*Set).Len() != 1 {
		t.Error("clone mutation leaked into original set")
	}
}
