package ruler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the type of a value produced during evaluation.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a typed evaluation result.
type Value struct {
	Kind Kind
	Text string
	Bool bool
}

// Eval walks the tree and returns the resulting value.
// expr is only used to annotate errors.
func Eval(n Node, expr string) (Value, error) {
	switch n := n.(type) {
	case *Number:
		return Value{Kind: KindNumber, Text: n.Text}, nil
	case *String:
		return Value{Kind: KindString, Text: n.Value}, nil
	case *Negation:
		v, err := Eval(n.X, expr)
		if err != nil {
			return Value{}, err
		}
		if v.Kind != KindBool {
			return Value{}, typeError(expr, "Cannot use num/string as boolean")
		}
		return boolValue(!v.Bool), nil
	case *Comparison:
		return evalComparison(n, expr)
	case *Logical:
		if n.Chained {
			return evalChain(n, expr)
		}
		return evalLogical(n, expr)
	default:
		return Value{}, fmt.Errorf("unknown node %T", n)
	}
}

func boolValue(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

func evalOperands(left, right Node, expr string) (Value, Value, error) {
	l, err := Eval(left, expr)
	if err != nil {
		return Value{}, Value{}, err
	}
	r, err := Eval(right, expr)
	if err != nil {
		return Value{}, Value{}, err
	}
	if l.Kind != r.Kind {
		return Value{}, Value{}, typeError(expr, "Cannot compare string & number")
	}
	return l, r, nil
}

func evalLogical(n *Logical, expr string) (Value, error) {
	l, r, err := evalOperands(n.Left, n.Right, expr)
	if err != nil {
		return Value{}, err
	}
	if l.Kind != KindBool {
		return Value{}, typeError(expr, "Cannot use boolean operators with string & number")
	}
	if n.Op == "&" {
		return boolValue(l.Bool && r.Bool), nil
	}
	return boolValue(l.Bool || r.Bool), nil
}

func evalChain(n *Logical, expr string) (Value, error) {
	l, err := Eval(n.Left, expr)
	if err != nil {
		return Value{}, err
	}
	if l.Kind != KindBool {
		return Value{}, typeError(expr, "Cannot use boolean operators with string & number")
	}
	if n.Op == "|" && l.Bool {
		return l, nil
	}
	if n.Op == "&" && !l.Bool {
		return l, nil
	}
	r, err := Eval(n.Right, expr)
	if err != nil {
		return Value{}, err
	}
	if r.Kind != KindBool {
		return Value{}, typeError(expr, "Cannot use boolean operators with string & number")
	}
	return r, nil
}

func evalComparison(n *Comparison, expr string) (Value, error) {
	l, r, err := evalOperands(n.Left, n.Right, expr)
	if err != nil {
		return Value{}, err
	}

	if n.Op == "~" {
		if l.Kind == KindBool {
			return Value{}, typeError(expr, "Cannot match a boolean against a regular expression")
		}
		re, err := regexp.Compile(strings.ReplaceAll(r.Text, `"`, ""))
		if err != nil {
			return Value{}, &EvalError{Kind: ErrSyntax, Expr: expr, Pos: -1, Msg: fmt.Sprintf("invalid regular expression: %v", err)}
		}
		return boolValue(re.MatchString(l.Text)), nil
	}

	cmp := compareValues(l, r)
	switch n.Op {
	case "<":
		return boolValue(cmp < 0), nil
	case "<=":
		return boolValue(cmp <= 0), nil
	case ">":
		return boolValue(cmp > 0), nil
	case ">=":
		return boolValue(cmp >= 0), nil
	case "=":
		return boolValue(cmp == 0), nil
	case "!=":
		return boolValue(cmp != 0), nil
	default:
		return Value{}, syntaxError(expr, -1, "unknown comparison %q", n.Op)
	}
}

// compareValues orders two values of the same kind. Numbers and numeric
// strings compare numerically, other strings lexically, false before true.
func compareValues(l, r Value) int {
	if l.Kind == KindBool {
		switch {
		case l.Bool == r.Bool:
			return 0
		case !l.Bool:
			return -1
		default:
			return 1
		}
	}
	lf, lerr := strconv.ParseFloat(l.Text, 64)
	rf, rerr := strconv.ParseFloat(r.Text, 64)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(l.Text, r.Text)
}
