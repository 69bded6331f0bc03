// Package vm executes lowered CFGs: it implements the heap frames backing
// closures, the resumable machine protocol backing generators and async
// functions, and a small interpreter that drives both.
package vm

import "fmt"

// unsetType is the type of the undefined sentinel. It is distinct from every
// value the source language can produce, including nil.
type unsetType struct{}

func (unsetType) String() string { return "<unset>" }

// Unset is the undefined sentinel stored in registers, frame fields and
// state record slots that have not been assigned yet.
var Unset any = unsetType{}

// GoFn is a host function callable from lowered code.
type GoFn func(args []any) (any, error)

// ContextManager is the contract of values usable in a with statement.
type ContextManager interface {
	// Enter acquires the resource and returns the value bound by the with
	// clause.
	Enter() (any, error)
	// Exit releases the resource. It runs exactly once on every way out of
	// the with body.
	Exit() error
}

// Truthy reports the truthiness of a value: nil, false, zero and the empty
// string are false.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

func binop(op string, x, y any) (any, error) {
	switch op {
	case "==":
		return x == y, nil
	case "!=":
		return x != y, nil
	}
	switch x := x.(type) {
	case int:
		if y, ok := y.(int); ok {
			return intOp(op, x, y)
		}
	case string:
		if y, ok := y.(string); ok {
			return stringOp(op, x, y)
		}
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %T and %T", op, x, y)
}

func intOp(op string, x, y int) (any, error) {
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x % y, nil
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	case ">=":
		return x >= y, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func stringOp(op string, x, y string) (any, error) {
	switch op {
	case "+":
		return x + y, nil
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	case ">=":
		return x >= y, nil
	}
	return nil, fmt.Errorf("unknown operator %q for strings", op)
}
