package ruler

import "fmt"

// Node is an expression tree node.
type Node interface {
	fmt.Stringer
	node()
}

// Number is a numeric literal, kept as written.
type Number struct {
	Text string
}

// String is a double-quoted literal without its quotes.
type String struct {
	Value string
}

// Comparison applies one of < <= > >= = != ~ to two operands of the same type.
type Comparison struct {
	Op    string
	Left  Node
	Right Node
}

// Logical applies & or | to two boolean operands.
//
// Chained is set for the connective that joins a complete comparison to the
// rest of the expression. Chained nodes short-circuit; the right operand of a
// non-chained node is always evaluated.
type Logical struct {
	Op      string
	Left    Node
	Right   Node
	Chained bool
}

// Negation inverts a boolean.
type Negation struct {
	X Node
}

func (*Number) node()     {}
func (*String) node()     {}
func (*Comparison) node() {}
func (*Logical) node()    {}
func (*Negation) node()   {}

func (n *Number) String() string { return n.Text }

func (s *String) String() string { return `"` + s.Value + `"` }

func (c *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

func (l *Logical) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

func (n *Negation) String() string { return "!" + n.X.String() }

// isScalar reports whether n is a bare literal, which never yields a boolean.
func isScalar(n Node) bool {
	switch n.(type) {
	case *Number, *String:
		return true
	default:
		return false
	}
}
