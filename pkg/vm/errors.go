package vm

import (
	"errors"
	"fmt"
)

// ExhaustedError is returned by Advance and Throw on a machine already in a
// terminal state.
type ExhaustedError struct{}

func (ExhaustedError) Error() string { return "machine is exhausted" }

// CloseProtocolError is returned by Close when cleanup code attempts to
// yield. The cancellation is not considered delivered: the machine stays
// suspended at the offending yield.
type CloseProtocolError struct{}

func (CloseProtocolError) Error() string { return "cleanup yielded during close" }

// DelegationError is raised when the object a yield-from or await delegates
// to does not support the resumable protocol.
type DelegationError struct {
	Value any
}

func (e DelegationError) Error() string {
	return fmt.Sprintf("%T does not support the resumable protocol", e.Value)
}

// UnboundSpillError is raised when a spilled slot is read while it still
// holds the undefined sentinel: the variable was never assigned on the path
// actually taken before the suspension.
type UnboundSpillError struct {
	Name string
}

func (e UnboundSpillError) Error() string {
	return fmt.Sprintf("variable %q read before assignment across a suspension", e.Name)
}

// UnboundVarError is raised when a plain local, frame field or global is
// read before assignment.
type UnboundVarError struct {
	Name string
}

func (e UnboundVarError) Error() string {
	return fmt.Sprintf("variable %q is not bound", e.Name)
}

// ArityError is returned when a closure is called with the wrong number of
// arguments.
type ArityError struct {
	Func      string
	Want, Got int
}

func (e ArityError) Error() string {
	return fmt.Sprintf("%s takes %d arguments, got %d", e.Func, e.Want, e.Got)
}

// ErrRunning is returned when a machine is resumed while it is already
// running; the persistent record is not designed for reentrant mutation.
var ErrRunning = errors.New("machine resumed while already running")

// errStartedWithValue is raised when the first Advance of a machine carries
// a non-nil input: there is no suspension expression to receive it yet.
var errStartedWithValue = errors.New("cannot advance a just-created machine with a non-nil value")

// errClose is the cancellation signal injected at the current suspension
// point by Close. Except handlers do not observe it; cleanup handlers do.
var errClose = errors.New("machine closed")
