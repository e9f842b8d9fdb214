package ruler

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the class of an evaluation failure.
var (
	// ErrSyntax reports a malformed expression: unknown operator, missing operand,
	// unterminated string or group, trailing garbage.
	ErrSyntax = errors.New("syntax error")

	// ErrType reports operands of incompatible types, or a non-boolean value
	// used where a boolean is required.
	ErrType = errors.New("type error")

	// ErrOIDNotFound reports an _OID() placeholder that matches no binding of the trap.
	ErrOIDNotFound = errors.New("oid not found in trap")
)

// EvalError describes why a rule could not be evaluated.
// It unwraps to one of ErrSyntax, ErrType or ErrOIDNotFound.
type EvalError struct {
	Kind error
	Expr string
	Pos  int
	Msg  string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Expr == "" {
		return e.Msg
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("%s in %s at %d", e.Msg, e.Expr, e.Pos)
	}
	return fmt.Sprintf("%s : %s", e.Msg, e.Expr)
}

// Unwrap returns the sentinel error of the failure class.
func (e *EvalError) Unwrap() error {
	return e.Kind
}

func syntaxError(expr string, pos int, format string, args ...any) *EvalError {
	return &EvalError{Kind: ErrSyntax, Expr: expr, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func typeError(expr string, msg string) *EvalError {
	return &EvalError{Kind: ErrType, Expr: expr, Pos: -1, Msg: msg}
}
