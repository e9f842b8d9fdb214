// Package ruler evaluates the trap rule language.
//
// A rule is a boolean expression over numbers, double-quoted strings and
// parenthesized sub-expressions, combined with comparison operators
// (< <= > >= = != ~) and logical operators (& |). Values carried by a trap are
// referenced with _OID(pattern) placeholders, substituted before parsing.
//
// Evaluation happens in four stages, each usable on its own:
//
//	Substitute  _OID(...) placeholders -> literals
//	Cleanup     spaces outside strings removed
//	Parse       tokens -> expression tree (Lex, then recursive descent)
//	Eval        tree -> typed Value
//
// Basic usage:
//
//	ok, err := ruler.EvaluateRule(`_OID(.1.3.6.1.4.1.8072.2.3.2.1) > 10`, bindings)
//	if err != nil {
//		// malformed rule, type mismatch, or OID absent from the trap
//	}
//
// There is no operator precedence. The operator between the first two
// elements binds first, and a connective after them takes the rest of the
// expression as its right operand: (a)&(b)|(c) evaluates as ((a)&(b)) | (c),
// while a=1&b=2|c=3 evaluates as (a=1) & ((b=2)|(c=3)).
package ruler

import "sync/atomic"

// Stats counts evaluations performed by an Engine.
type Stats struct {
	Evaluations int64
	Matches     int64
	Errors      int64
}

// Engine evaluates rules and keeps counters. The zero value is ready to use
// and safe for concurrent use.
type Engine struct {
	evaluations atomic.Int64
	matches     atomic.Int64
	errors      atomic.Int64
}

// Evaluate evaluates rule against the bindings of a trap.
// An empty rule always matches.
func (e *Engine) Evaluate(rule string, bindings []Binding) (bool, error) {
	e.evaluations.Add(1)
	ok, err := EvaluateRule(rule, bindings)
	switch {
	case err != nil:
		e.errors.Add(1)
	case ok:
		e.matches.Add(1)
	}
	return ok, err
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Evaluations: e.evaluations.Load(),
		Matches:     e.matches.Load(),
		Errors:      e.errors.Load(),
	}
}

// EvaluateRule substitutes placeholders then evaluates the expression.
// An empty rule always matches.
func EvaluateRule(rule string, bindings []Binding) (bool, error) {
	if rule == "" {
		return true, nil
	}
	expr, err := Substitute(rule, bindings)
	if err != nil {
		return false, err
	}
	return Evaluate(expr)
}

// Evaluate evaluates an expression without placeholders.
func Evaluate(expr string) (bool, error) {
	clean, err := Cleanup(expr)
	if err != nil {
		return false, err
	}
	tree, err := Parse(clean)
	if err != nil {
		return false, err
	}
	v, err := Eval(tree, clean)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, typeError(clean, "Cannot use num/string as boolean")
	}
	return v.Bool, nil
}
