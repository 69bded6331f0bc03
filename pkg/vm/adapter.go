package vm

// valuesResumable adapts a fixed sequence of values to the resumable
// protocol, for delegating over foreign producers.
type valuesResumable struct {
	vals  []any
	ret   any
	i     int
	state LifeState
}

// Values returns a Resumable that yields the given values in order, then
// completes with a nil return value.
func Values(vals ...any) Resumable {
	return &valuesResumable{vals: vals, state: Created}
}

// ValuesThen is Values with an explicit completion value.
func ValuesThen(ret any, vals ...any) Resumable {
	return &valuesResumable{vals: vals, ret: ret, state: Created}
}

func (v *valuesResumable) Advance(any) (any, bool, error) {
	if v.state.Terminal() {
		return nil, false, ExhaustedError{}
	}
	if v.i < len(v.vals) {
		v.state = Suspended
		v.i++
		return v.vals[v.i-1], true, nil
	}
	v.state = Completed
	return v.ret, false, nil
}

func (v *valuesResumable) Throw(exc error) (any, bool, error) {
	if v.state.Terminal() {
		return nil, false, ExhaustedError{}
	}
	v.state = Raised
	return nil, false, asException(exc)
}

func (v *valuesResumable) Close() error {
	if !v.state.Terminal() {
		v.state = Closed
	}
	return nil
}

func (v *valuesResumable) State() LifeState { return v.state }

// Drain advances a resumable to a terminal state, collecting every yielded
// value, and returns the values, the completion value and any raise.
func Drain(r Resumable) ([]any, any, error) {
	var vals []any
	for {
		v, more, err := r.Advance(nil)
		if err != nil {
			return vals, nil, err
		}
		if !more {
			return vals, v, nil
		}
		vals = append(vals, v)
	}
}
