package diff

import (
	"testing"
	"time"

	"github.com/neisanworks/neisan-mongo/codec"
)

func mustDiff(t *testing.T, before, after codec.Document) *ChangeSet {
	t.Helper()
	cs, err := Diff("", before, after)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	return cs
}

// checkApplyLaw verifies that applying the change-set to before yields after.
func checkApplyLaw(t *testing.T, before, after codec.Document) *ChangeSet {
	t.Helper()
	cs := mustDiff(t, before, after)
	got, err := Apply(before, cs)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// The identifier is owned by the store, not the change-set.
	want := after.Clone()
	delete(want, codec.IDField)
	if id, ok := before[codec.IDField]; ok {
		want[codec.IDField] = id
	}
	if !codec.Equal(got, want) {
		t.Fatalf("apply law violated:\nbefore %v\nafter  %v\ngot    %v\nchange %+v", before, after, got, cs)
	}
	return cs
}

func TestDiffScalarChange(t *testing.T) {
	before := codec.Document{"email": "a@x.com", "attempts": float64(0)}
	after := codec.Document{"email": "b@x.com", "attempts": float64(0)}

	cs := checkApplyLaw(t, before, after)

	if len(cs.Set) != 1 || len(cs.Unset) != 0 || len(cs.Splice) != 0 {
		t.Fatalf("expected exactly one set operation, got %+v", cs)
	}
	if cs.Set["email"] != "b@x.com" {
		t.Errorf("expected set email=b@x.com, got %v", cs.Set["email"])
	}
}

func TestDiffSetAppend(t *testing.T) {
	before := codec.Document{"tags": codec.NewSet(float64(1), float64(2), float64(3))}
	after := codec.Document{"tags": codec.NewSet(float64(1), float64(2), float64(3), float64(4))}

	cs := checkApplyLaw(t, before, after)

	if len(cs.Set) != 0 || len(cs.Unset) != 0 || len(cs.Splice) != 1 {
		t.Fatalf("expected exactly one splice operation, got %+v", cs)
	}
	sp := cs.Splice["tags"]
	if sp.Tag != codec.TagSet {
		t.Errorf("expected tag %s, got %q", codec.TagSet, sp.Tag)
	}
	if sp.Position != 3 || sp.TruncateTo != 4 {
		t.Errorf("expected position=3 truncateTo=4, got %+v", sp)
	}
	if len(sp.Items) != 1 || !codec.Equal(sp.Items[0], float64(4)) {
		t.Errorf("expected items=[4], got %v", sp.Items)
	}
}

func TestDiffFieldRemoval(t *testing.T) {
	before := codec.Document{"nickname": "Al"}
	after := codec.Document{}

	cs := checkApplyLaw(t, before, after)

	if len(cs.Unset) != 1 || len(cs.Set) != 0 || len(cs.Splice) != 0 {
		t.Fatalf("expected exactly one unset operation, got %+v", cs)
	}
	if v, ok := cs.Unset["nickname"]; !ok || v != "" {
		t.Errorf("expected unset nickname with empty payload, got %v", cs.Unset)
	}
}

func TestDiffIdempotence(t *testing.T) {
	docs := []codec.Document{
		{},
		{"a": float64(1)},
		{"tags": codec.NewSet("x", "y"), "sub": codec.Document{"n": nil}},
		{"m": codec.NewOrderedMap(codec.Pair{Key: "k", Value: []any{float64(1), float64(2)}})},
		{"at": time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), "blob": []byte{1, 2, 3}},
	}
	for i, doc := range docs {
		cs := mustDiff(t, doc, doc)
		if !cs.Empty() {
			t.Errorf("case %d: diff(v, v) not empty: %+v", i, cs)
		}
	}
}

func TestDiffSequenceAppendMinimality(t *testing.T) {
	before := codec.Document{"log": []any{"a", "b"}, "other": float64(7)}
	after := codec.Document{"log": []any{"a", "b", "c"}, "other": float64(7)}

	cs := checkApplyLaw(t, before, after)

	if len(cs.Splice) != 1 || len(cs.Set) != 0 || len(cs.Unset) != 0 {
		t.Fatalf("expected a single splice, never a full set: %+v", cs)
	}
	sp := cs.Splice["log"]
	if sp.Tag != "" || sp.Position != 2 || sp.TruncateTo != 3 || len(sp.Items) != 1 {
		t.Errorf("unexpected splice %+v", sp)
	}
}

func TestDiffSequenceTruncation(t *testing.T) {
	before := codec.Document{"log": []any{"a", "b", "c"}}
	after := codec.Document{"log": []any{"a"}}

	cs := checkApplyLaw(t, before, after)

	sp, ok := cs.Splice["log"]
	if !ok {
		t.Fatalf("expected splice, got %+v", cs)
	}
	if sp.Position != 1 || sp.TruncateTo != 1 || len(sp.Items) != 0 {
		t.Errorf("expected pure truncation at 1, got %+v", sp)
	}
}

func TestDiffInteriorEditRewritesTail(t *testing.T) {
	before := codec.Document{"log": []any{"a", "b", "c", "d"}}
	after := codec.Document{"log": []any{"a", "x", "c", "d"}}

	cs := checkApplyLaw(t, before, after)

	sp := cs.Splice["log"]
	if sp.Position != 1 || sp.TruncateTo != 4 || len(sp.Items) != 3 {
		t.Errorf("expected tail rewrite from first divergence, got %+v", sp)
	}
}

func TestDiffOrderedMapAppend(t *testing.T) {
	before := codec.Document{"m": codec.NewOrderedMap(
		codec.Pair{Key: "a", Value: float64(1)},
	)}
	after := codec.Document{"m": codec.NewOrderedMap(
		codec.Pair{Key: "a", Value: float64(1)},
		codec.Pair{Key: "b", Value: float64(2)},
	)}

	cs := checkApplyLaw(t, before, after)

	sp, ok := cs.Splice["m"]
	if !ok {
		t.Fatalf("expected splice for ordered map, got %+v", cs)
	}
	if sp.Tag != codec.TagMap || sp.Position != 1 || sp.TruncateTo != 2 {
		t.Errorf("unexpected splice %+v", sp)
	}
}

func TestDiffKindChangeEmitsFullSet(t *testing.T) {
	before := codec.Document{"v": codec.Document{"nested": true}}
	after := codec.Document{"v": "now-a-string"}
	cs := checkApplyLaw(t, before, after)
	if _, ok := cs.Set["v"]; !ok {
		t.Fatalf("expected full set on kind change, got %+v", cs)
	}

	// And in the other direction: a container replacing a scalar.
	before2 := codec.Document{"v": "scalar"}
	after2 := codec.Document{"v": codec.NewSet("a")}
	cs2 := checkApplyLaw(t, before2, after2)
	if _, ok := cs2.Set["v"]; !ok {
		t.Fatalf("expected full set when before was not a set, got %+v", cs2)
	}
}

func TestDiffNestedKeyedCollections(t *testing.T) {
	before := codec.Document{
		"_id": "u1",
		"profile": codec.Document{
			"name":  "Al",
			"theme": "light",
			"inner": codec.Document{"keep": true, "drop": float64(1)},
		},
	}
	after := codec.Document{
		"_id": "u1",
		"profile": codec.Document{
			"name":  "Alice",
			"theme": "light",
			"inner": codec.Document{"keep": true},
		},
	}

	cs := checkApplyLaw(t, before, after)

	if !codec.Equal(cs.Set["profile.name"], "Alice") {
		t.Errorf("expected set at profile.name, got %+v", cs.Set)
	}
	if _, ok := cs.Unset["profile.inner.drop"]; !ok {
		t.Errorf("expected unset at profile.inner.drop, got %+v", cs.Unset)
	}
	if _, ok := cs.Set["profile.theme"]; ok {
		t.Error("untouched field must not appear in the change-set")
	}
}

func TestDiffIdentifierNeverPresent(t *testing.T) {
	before := codec.Document{"_id": "u1", "a": float64(1)}
	after := codec.Document{"_id": "u2", "a": float64(2)}

	cs := mustDiff(t, before, after)
	if _, ok := cs.Set["_id"]; ok {
		t.Error("identifier field must never appear in a change-set")
	}
	if _, ok := cs.Unset["_id"]; ok {
		t.Error("identifier field must never appear in a change-set")
	}
}

func TestDiffRootUnset(t *testing.T) {
	if _, err := Diff("", codec.Document{"a": float64(1)}, nil); err != ErrRootUnset {
		t.Fatalf("expected ErrRootUnset, got %v", err)
	}
}

func TestDiffPathsDisjointAcrossKinds(t *testing.T) {
	before := codec.Document{
		"a": float64(1),
		"b": []any{"x"},
		"c": "gone",
	}
	after := codec.Document{
		"a": float64(2),
		"b": []any{"x", "y"},
	}
	cs := checkApplyLaw(t, before, after)

	seen := map[string]int{}
	for p := range cs.Set {
		seen[p]++
	}
	for p := range cs.Unset {
		seen[p]++
	}
	for p := range cs.Splice {
		seen[p]++
	}
	for p, n := range seen {
		if n > 1 {
			t.Errorf("path %q appears under %d operation kinds", p, n)
		}
	}
}

func TestDiffInstantChange(t *testing.T) {
	before := codec.Document{"at": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	after := codec.Document{"at": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	cs := checkApplyLaw(t, before, after)
	if _, ok := cs.Set["at"]; !ok {
		t.Fatalf("expected set for changed instant, got %+v", cs)
	}
}

func TestUpdateDocumentShape(t *testing.T) {
	before := codec.Document{"tags": codec.NewSet(float64(1)), "old": true}
	after := codec.Document{"tags": codec.NewSet(float64(1), float64(2)), "name": "n"}

	cs := mustDiff(t, before, after)
	update := cs.UpdateDocument()

	if _, ok := update[OpSet].(map[string]any); !ok {
		t.Errorf("expected %s section", OpSet)
	}
	if _, ok := update[OpUnset].(map[string]any); !ok {
		t.Errorf("expected %s section", OpUnset)
	}
	splices, ok := update[OpSplice].(map[string]any)
	if !ok {
		t.Fatalf("expected %s section", OpSplice)
	}
	payload, ok := splices["tags"].(map[string]any)
	if !ok {
		t.Fatalf("expected splice payload object, got %T", splices["tags"])
	}
	if payload["tag"] != codec.TagSet {
		t.Errorf("expected tag %s, got %v", codec.TagSet, payload["tag"])
	}
}
