package vm

import "fmt"

// Exception is the runtime representation of a raised condition. It can be
// stored (in a register or state record), re-raised, and chained through
// Cause.
type Exception struct {
	// Reason is the underlying condition.
	Reason error
	// Cause is the exception being handled when this one was raised, if any.
	Cause *Exception
}

func (e *Exception) Error() string { return e.Reason.Error() }

func (e *Exception) Unwrap() error { return e.Reason }

// asException wraps an error into an Exception, passing exceptions through.
func asException(err error) *Exception {
	if exc, ok := err.(*Exception); ok {
		return exc
	}
	return &Exception{Reason: err}
}

// raisedValue is the reason of an exception raised from a non-error value,
// like `raise "boom"`.
type raisedValue struct {
	value any
}

func (r raisedValue) Error() string { return fmt.Sprint(r.value) }

// RaisedValue returns the raw value an exception was raised from, or the
// reason error itself.
func (e *Exception) RaisedValue() any {
	if r, ok := e.Reason.(raisedValue); ok {
		return r.value
	}
	return e.Reason
}

// toException converts a raised value to an Exception.
func toException(v any) *Exception {
	switch v := v.(type) {
	case *Exception:
		return v
	case error:
		return &Exception{Reason: v}
	default:
		return &Exception{Reason: raisedValue{v}}
	}
}
