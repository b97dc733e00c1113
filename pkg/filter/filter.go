// Package filter evaluates keep/drop predicates against extracted records.
//
// Pipeline configs declare filters as small comparison expressions, e.g.
//
//	level in ["AGI", "ASI"] && score >= 10
//
// Expressions are compiled to an AST once, at load time, and evaluated
// against each merged record. They are never executed as host code. For
// conditions the expression language cannot express, programs register a
// named Predicate and reference it as @name inside an expression.
package filter

import (
	"reflect"
	"strings"
)

// Predicate decides whether a record survives a pipeline stage.
// It must not mutate the record.
type Predicate func(record map[string]any) bool

// Filter is a compiled filter expression.
type Filter struct {
	src  string
	expr node
}

// Compile parses a filter expression. A nil error guarantees Eval will not
// panic on any record, so configs can be rejected before any work starts.
func Compile(src string) (*Filter, error) {
	p := newParser(src)
	expr, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Filter{src: src, expr: expr}, nil
}

// MustCompile is Compile for expressions known at build time.
func MustCompile(src string) *Filter {
	f, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return f
}

// Eval reports whether the record passes the filter.
// Comparisons between incompatible types are false, never an error;
// a missing field reads as null.
func (f *Filter) Eval(record map[string]any) bool {
	return truthy(f.expr.eval(record))
}

// Predicate adapts the filter to the Predicate type.
func (f *Filter) Predicate() Predicate {
	return f.Eval
}

// String returns the original expression source.
func (f *Filter) String() string {
	return f.src
}

// --- AST ---

type node interface {
	eval(record map[string]any) any
}

type orNode struct{ left, right node }

func (n orNode) eval(rec map[string]any) any {
	return truthy(n.left.eval(rec)) || truthy(n.right.eval(rec))
}

type andNode struct{ left, right node }

func (n andNode) eval(rec map[string]any) any {
	return truthy(n.left.eval(rec)) && truthy(n.right.eval(rec))
}

type notNode struct{ operand node }

func (n notNode) eval(rec map[string]any) any {
	return !truthy(n.operand.eval(rec))
}

type cmpOp int

const (
	opEq cmpOp = iota
	opNeq
	opLt
	opLte
	opGt
	opGte
	opIn
	opNotIn
	opContains
)

type cmpNode struct {
	op          cmpOp
	left, right node
}

func (n cmpNode) eval(rec map[string]any) any {
	left := n.left.eval(rec)
	right := n.right.eval(rec)

	switch n.op {
	case opEq:
		return equal(left, right)
	case opNeq:
		return !equal(left, right)
	case opLt, opLte, opGt, opGte:
		return ordered(n.op, left, right)
	case opIn:
		return member(left, right)
	case opNotIn:
		return !member(left, right)
	case opContains:
		return member(right, left)
	}
	return false
}

type literalNode struct{ value any }

func (n literalNode) eval(map[string]any) any { return n.value }

type listNode struct{ elems []node }

func (n listNode) eval(rec map[string]any) any {
	out := make([]any, len(n.elems))
	for i, e := range n.elems {
		out[i] = e.eval(rec)
	}
	return out
}

// fieldNode reads a record field; dots descend into nested objects.
type fieldNode struct{ path []string }

func (n fieldNode) eval(rec map[string]any) any {
	var cur any = rec
	for _, part := range n.path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// predicateNode invokes a registered named predicate.
type predicateNode struct {
	name string
	fn   Predicate
}

func (n predicateNode) eval(rec map[string]any) any { return n.fn(rec) }

// --- value semantics ---

// truthy follows the conventions of dynamically typed filter targets:
// null, false, "", 0, and empty collections are false, everything else true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// equal compares across the numeric types records carry after JSON decoding
// and coercion. Values of incompatible kinds are unequal, not an error.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func ordered(op cmpOp, a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return false
		}
		switch op {
		case opLt:
			return af < bf
		case opLte:
			return af <= bf
		case opGt:
			return af > bf
		case opGte:
			return af >= bf
		}
		return false
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	switch op {
	case opLt:
		return as < bs
	case opLte:
		return as <= bs
	case opGt:
		return as > bs
	case opGte:
		return as >= bs
	}
	return false
}

// member reports whether item occurs in collection: list membership for
// lists, substring match for strings.
func member(item, collection any) bool {
	switch c := collection.(type) {
	case []any:
		for _, e := range c {
			if equal(item, e) {
				return true
			}
		}
		return false
	case []string:
		s, ok := item.(string)
		if !ok {
			return false
		}
		for _, e := range c {
			if s == e {
				return true
			}
		}
		return false
	case string:
		s, ok := item.(string)
		return ok && strings.Contains(c, s)
	}
	return false
}
