// Package query implements exact-match filter evaluation and value ordering
// for store drivers. Filters are unstructured maps (e.g. {"age": {"$gt": 25},
// "status": "active"}) parsed into a small AST that drivers evaluate against
// wire documents.
package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator.
type Operator string

const (
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
	OpIn  Operator = "$in"
)

// Matcher evaluates a parsed filter against a document.
type Matcher interface {
	Matches(doc map[string]any) bool
}

// FieldNode compares a single field against a value.
type FieldNode struct {
	Field    string
	Operator Operator
	Value    any
}

// LogicalNode combines child matchers with $and / $or.
type LogicalNode struct {
	Operator string
	Children []Matcher
}

// Parse converts a map-based filter into a Matcher. A nil or empty filter
// matches everything. Bare values are implicit $eq.
func Parse(filter map[string]any) (Matcher, error) {
	var children []Matcher

	for key, val := range filter {
		if key == "$and" || key == "$or" {
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("query: value for %s must be a list", key)
			}
			sub := make([]Matcher, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("query: element of %s must be an object", key)
				}
				node, err := Parse(m)
				if err != nil {
					return nil, err
				}
				sub = append(sub, node)
			}
			children = append(children, &LogicalNode{Operator: key, Children: sub})
			continue
		}

		if opMap, ok := val.(map[string]any); ok && hasOperatorKey(opMap) {
			for op, opVal := range opMap {
				switch Operator(op) {
				case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
					children = append(children, &FieldNode{Field: key, Operator: Operator(op), Value: opVal})
				default:
					return nil, fmt.Errorf("query: unknown operator %s", op)
				}
			}
			continue
		}

		children = append(children, &FieldNode{Field: key, Operator: OpEq, Value: val})
	}

	return &LogicalNode{Operator: "$and", Children: children}, nil
}

func hasOperatorKey(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// Matches reports whether the document field satisfies the comparison. Dot
// paths address nested objects.
func (n *FieldNode) Matches(doc map[string]any) bool {
	val, exists := lookup(doc, n.Field)
	if !exists {
		return false
	}
	switch n.Operator {
	case OpEq:
		return Compare(val, n.Value) == 0
	case OpNe:
		return Compare(val, n.Value) != 0
	case OpGt:
		return Compare(val, n.Value) > 0
	case OpGte:
		return Compare(val, n.Value) >= 0
	case OpLt:
		return Compare(val, n.Value) < 0
	case OpLte:
		return Compare(val, n.Value) <= 0
	case OpIn:
		list, ok := n.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if Compare(val, item) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

func (n *LogicalNode) Matches(doc map[string]any) bool {
	switch n.Operator {
	case "$and":
		for _, child := range n.Children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	case "$or":
		for _, child := range n.Children {
			if child.Matches(doc) {
				return true
			}
		}
		return false
	}
	return false
}

func lookup(doc map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	var current any = doc
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Compare orders two values: -1 if a < b, 0 if equal, 1 if a > b. Numbers
// compare numerically regardless of Go type; everything else falls back to
// string comparison of the formatted values.
func Compare(a, b any) int {
	f1, ok1 := toFloat(a)
	f2, ok2 := toFloat(b)
	if ok1 && ok2 {
		switch {
		case f1 > f2:
			return 1
		case f1 < f2:
			return -1
		default:
			return 0
		}
	}
	s1 := fmt.Sprintf("%v", a)
	s2 := fmt.Sprintf("%v", b)
	switch {
	case s1 > s2:
		return 1
	case s1 < s2:
		return -1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
