// Package predicate compiles CEL expressions into client-side document
// predicates for cursor predicate mode. The document is exposed to the
// expression as the variable `doc`, in its wire (primitive-only) form, e.g.
//
//	doc.age > 25 && doc.status == "active"
package predicate

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Func evaluates a predicate against a single document.
type Func func(doc map[string]any) (bool, error)

// Compiler turns CEL source into predicate functions, caching compiled
// programs by source text.
type Compiler struct {
	env   *cel.Env
	cache *lru.Cache[string, cel.Program]
}

const defaultCacheSize = 256

// NewCompiler creates a compiler with the standard environment.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("doc", decls.NewMapType(decls.String, decls.Dyn)),
		),
	)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, cel.Program](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Compiler{env: env, cache: cache}, nil
}

// Compile parses, checks and caches the expression, returning a Func bound to
// the compiled program. Compile errors are returned eagerly so a bad
// expression fails at cursor construction, not on the first pull.
func (c *Compiler) Compile(expression string) (Func, error) {
	prg, err := c.program(expression)
	if err != nil {
		return nil, err
	}
	return func(doc map[string]any) (bool, error) {
		out, _, err := prg.Eval(map[string]any{"doc": doc})
		if err != nil {
			return false, fmt.Errorf("predicate: eval error: %w", err)
		}
		result, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("predicate: expression must return boolean, got %T", out.Value())
		}
		return result, nil
	}, nil
}

func (c *Compiler) program(expression string) (cel.Program, error) {
	if prg, ok := c.cache.Get(expression); ok {
		return prg, nil
	}
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("predicate: compile error: %w", issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("predicate: program construction error: %w", err)
	}
	c.cache.Add(expression, prg)
	return prg, nil
}
