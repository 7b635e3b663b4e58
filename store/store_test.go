package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/neisanworks/neisan-mongo/diff"
)

// drivers returns one factory per Driver implementation so every contract
// test runs against both backends.
func drivers(t *testing.T) map[string]func(t *testing.T) Driver {
	return map[string]func(t *testing.T) Driver{
		"memory": func(t *testing.T) Driver {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Driver {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func drain(t *testing.T, stream Stream) []map[string]any {
	t.Helper()
	defer stream.Close()
	var docs []map[string]any
	for {
		doc, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return docs
		}
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		docs = append(docs, doc)
	}
}

func TestInsertAndStream(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			docs := []map[string]any{
				{"_id": "1", "kind": "a", "n": float64(1)},
				{"_id": "2", "kind": "b", "n": float64(2)},
				{"_id": "3", "kind": "a", "n": float64(3)},
			}
			for _, doc := range docs {
				res, err := drv.InsertOne(ctx, "things", doc)
				if err != nil {
					t.Fatal(err)
				}
				if !res.Acknowledged {
					t.Fatal("insert not acknowledged")
				}
			}

			stream, err := drv.OpenResultStream(ctx, "things", map[string]any{"kind": "a"}, Options{})
			if err != nil {
				t.Fatal(err)
			}
			got := drain(t, stream)
			if len(got) != 2 {
				t.Fatalf("expected 2 matching documents, got %d", len(got))
			}
			if got[0]["_id"] != "1" || got[1]["_id"] != "3" {
				t.Errorf("expected delivery order 1,3 got %v,%v", got[0]["_id"], got[1]["_id"])
			}
		})
	}
}

func TestStreamSort(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			for _, doc := range []map[string]any{
				{"_id": "1", "n": float64(2)},
				{"_id": "2", "n": float64(3)},
				{"_id": "3", "n": float64(1)},
			} {
				if _, err := drv.InsertOne(ctx, "c", doc); err != nil {
					t.Fatal(err)
				}
			}

			stream, err := drv.OpenResultStream(ctx, "c", nil, Options{SortField: "n", SortDesc: true})
			if err != nil {
				t.Fatal(err)
			}
			got := drain(t, stream)
			if got[0]["_id"] != "2" || got[2]["_id"] != "3" {
				t.Errorf("descending sort broken: %v", got)
			}
		})
	}
}

func TestFindOneAndUpdate(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			doc := map[string]any{
				"_id":  "u1",
				"name": "Al",
				"tags": map[string]any{"$uset": []any{float64(1), float64(2)}},
			}
			if _, err := drv.InsertOne(ctx, "users", doc); err != nil {
				t.Fatal(err)
			}

			update := map[string]any{
				diff.OpSet:   map[string]any{"name": "Alice"},
				diff.OpUnset: map[string]any{"gone": ""},
				diff.OpSplice: map[string]any{
					"tags": map[string]any{
						"tag":        "$uset",
						"items":      []any{float64(3)},
						"position":   2,
						"truncateTo": 3,
					},
				},
			}
			res, err := drv.FindOneAndUpdate(ctx, "users", "u1", update)
			if err != nil {
				t.Fatal(err)
			}
			if res.Document == nil {
				t.Fatal("expected updated document")
			}
			if res.Document["name"] != "Alice" {
				t.Errorf("expected name=Alice, got %v", res.Document["name"])
			}
			tags := res.Document["tags"].(map[string]any)["$uset"].([]any)
			if len(tags) != 3 {
				t.Errorf("expected 3 tags after splice, got %v", tags)
			}

			// No match: acknowledged, nil document, no error.
			res, err = drv.FindOneAndUpdate(ctx, "users", "missing", update)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Acknowledged || res.Document != nil {
				t.Errorf("expected acknowledged nil-document result, got %+v", res)
			}
		})
	}
}

func TestDeleteOne(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			if _, err := drv.InsertOne(ctx, "c", map[string]any{"_id": "x"}); err != nil {
				t.Fatal(err)
			}
			res, err := drv.DeleteOne(ctx, "c", "x")
			if err != nil || !res.Found {
				t.Fatalf("expected found delete, got %+v err %v", res, err)
			}
			res, err = drv.DeleteOne(ctx, "c", "x")
			if err != nil || res.Found {
				t.Fatalf("expected not-found delete, got %+v err %v", res, err)
			}
		})
	}
}

func TestUniqueConflict(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			if err := drv.EnsureUnique(ctx, "users", "email"); err != nil {
				t.Fatal(err)
			}
			if _, err := drv.InsertOne(ctx, "users", map[string]any{"_id": "1", "email": "a@x.com"}); err != nil {
				t.Fatal(err)
			}

			_, err := drv.InsertOne(ctx, "users", map[string]any{"_id": "2", "email": "a@x.com"})
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if conflict.Field != "email" {
				t.Errorf("expected conflict on email, got %q", conflict.Field)
			}

			// Updates hit the same check.
			if _, err := drv.InsertOne(ctx, "users", map[string]any{"_id": "2", "email": "b@x.com"}); err != nil {
				t.Fatal(err)
			}
			_, err = drv.FindOneAndUpdate(ctx, "users", "2",
				map[string]any{diff.OpSet: map[string]any{"email": "a@x.com"}})
			if !errors.As(err, &conflict) {
				t.Fatalf("expected ConflictError on update, got %v", err)
			}
		})
	}
}

func TestDuplicateID(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			drv := open(t)
			defer drv.Close()
			ctx := context.Background()

			if _, err := drv.InsertOne(ctx, "c", map[string]any{"_id": "dup"}); err != nil {
				t.Fatal(err)
			}
			if _, err := drv.InsertOne(ctx, "c", map[string]any{"_id": "dup"}); !errors.Is(err, ErrDuplicateID) {
				t.Fatalf("expected ErrDuplicateID, got %v", err)
			}
		})
	}
}

func TestStreamSnapshotIsolation(t *testing.T) {
	drv := NewMemory()
	ctx := context.Background()

	if _, err := drv.InsertOne(ctx, "c", map[string]any{"_id": "1"}); err != nil {
		t.Fatal(err)
	}
	stream, err := drv.OpenResultStream(ctx, "c", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	// A write after open must not appear in the already-open stream.
	if _, err := drv.InsertOne(ctx, "c", map[string]any{"_id": "2"}); err != nil {
		t.Fatal(err)
	}
	got := drain(t, stream)
	if len(got) != 1 {
		t.Errorf("expected snapshot of 1 document, got %d", len(got))
	}
}
