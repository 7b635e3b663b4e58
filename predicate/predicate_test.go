package predicate

import "testing"

func TestCompileAndEvaluate(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatal(err)
	}

	pred, err := c.Compile(`doc.age > 25.0 && doc.status == "active"`)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := pred(map[string]any{"age": float64(30), "status": "active"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected match")
	}

	ok, err = pred(map[string]any{"age": float64(20), "status": "active"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match")
	}
}

func TestCompileErrorIsEager(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile(`doc.age >`); err == nil {
		t.Error("expected compile error")
	}
}

func TestNonBooleanExpression(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatal(err)
	}
	pred, err := c.Compile(`doc.age`)
	if err != nil {
		// Some non-boolean expressions are rejected at compile time,
		// which is just as acceptable.
		return
	}
	if _, err := pred(map[string]any{"age": float64(1)}); err == nil {
		t.Error("expected evaluation error for non-boolean result")
	}
}

func TestProgramCache(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile(`doc.n == 1.0`); err != nil {
		t.Fatal(err)
	}
	if !c.cache.Contains(`doc.n == 1.0`) {
		t.Error("expected compiled program to be cached")
	}
}
