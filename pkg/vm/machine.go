package vm

import "github.com/loomlang/loom/pkg/ir"

// LifeState is the lifecycle state of a resumable machine.
type LifeState int

const (
	// Created: allocated, the body has not started.
	Created LifeState = iota
	// Running: between a resume and the next suspension. Resuming a running
	// machine is rejected.
	Running
	// Suspended: stopped at a suspension point, ready to be resumed.
	Suspended
	// Completed: the body returned.
	Completed
	// Raised: the body raised an exception out of the function.
	Raised
	// Closed: finalized by Close.
	Closed
)

var lifeStateNames = [...]string{
	"created", "running", "suspended", "completed", "raised", "closed",
}

func (s LifeState) String() string { return lifeStateNames[s] }

// Terminal reports whether the state is final.
func (s LifeState) Terminal() bool {
	return s == Completed || s == Raised || s == Closed
}

// Resumable is the protocol shared by every lowered generator and async
// function, and by adapters wrapping foreign producers. Advance and Throw
// report (value, true, nil) on a yield, (value, false, nil) on completion,
// and (nil, false, err) on a raise or protocol error.
type Resumable interface {
	Advance(input any) (any, bool, error)
	Throw(exc error) (any, bool, error)
	Close() error
	State() LifeState
}

// Machine is one live generator or coroutine invocation: the state record
// plus the driver logic shared by all lowered functions.
type Machine struct {
	fn     *ir.CompiledFunc
	interp *Interp
	env    *Frame
	args   []any

	state    LifeState
	resumeAt int
	// slots persistently back the registers that are live across a
	// suspension point. Unassigned slots hold the undefined sentinel; slot
	// reuse must never observe a stale value.
	slots []any
	// frame is the machine's own heap frame, allocated when the body first
	// runs.
	frame    *Frame
	delegate Resumable
	result   any

	pendingInput any
	pendingExc   *Exception
	closing      bool
}

var _ Resumable = (*Machine)(nil)

// newMachine allocates the state record for a generator call. The body does
// not run; the record is the externally visible call result.
func newMachine(c *Closure, args []any) *Machine {
	slots := make([]any, len(c.fn.SpillRegs))
	for i := range slots {
		slots[i] = Unset
	}
	return &Machine{
		fn:     c.fn,
		interp: c.interp,
		env:    c.env,
		args:   args,
		state:  Created,
		slots:  slots,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() LifeState { return m.state }

// Result returns the completion value after the machine reaches Completed.
func (m *Machine) Result() any { return m.result }

// Advance resumes the machine, injecting input as the result of the
// suspension expression, and runs until the next suspension point or a
// terminal state.
func (m *Machine) Advance(input any) (any, bool, error) {
	switch {
	case m.state == Running:
		return nil, false, ErrRunning
	case m.state.Terminal():
		return nil, false, ExhaustedError{}
	case m.state == Created:
		if input != nil {
			return nil, false, errStartedWithValue
		}
	}
	if m.delegate != nil {
		return m.pumpDelegate(func(d Resumable) (any, bool, error) {
			return d.Advance(input)
		})
	}
	m.pendingInput = input
	return m.resume()
}

// Throw is Advance with an exception injected at the resume point. At
// Created, the exception is raised without executing any body code.
func (m *Machine) Throw(exc error) (any, bool, error) {
	switch {
	case m.state == Running:
		return nil, false, ErrRunning
	case m.state.Terminal():
		return nil, false, ExhaustedError{}
	case m.state == Created:
		m.state = Raised
		return nil, false, asException(exc)
	}
	if m.delegate != nil {
		return m.pumpDelegate(func(d Resumable) (any, bool, error) {
			return d.Throw(exc)
		})
	}
	m.pendingExc = asException(exc)
	return m.resume()
}

// Close cancels the machine: pending finally and with cleanup runs, then the
// machine is finalized. Closing a terminal machine is a no-op. Delegation
// chains are closed innermost first.
func (m *Machine) Close() error {
	switch {
	case m.state == Running:
		return ErrRunning
	case m.state.Terminal():
		return nil
	case m.state == Created:
		m.state = Closed
		return nil
	}
	var delegateErr error
	if m.delegate != nil {
		delegateErr = m.delegate.Close()
		m.delegate = nil
	}
	m.closing = true
	defer func() { m.closing = false }()
	m.pendingExc = &Exception{Reason: errClose}
	_, _, err := m.resume()
	if err != nil {
		return err
	}
	return delegateErr
}

// pumpDelegate forwards a resume into the delegated-to machine. While the
// sub-machine keeps yielding, its values pass straight through; when it
// completes, its return value becomes the result of the delegation
// expression and this machine's own body continues.
func (m *Machine) pumpDelegate(forward func(Resumable) (any, bool, error)) (any, bool, error) {
	v, more, err := forward(m.delegate)
	if more {
		return v, true, nil
	}
	m.delegate = nil
	if err != nil {
		m.pendingExc = asException(err)
	} else {
		m.pendingInput = v
	}
	return m.resume()
}

// resume runs the body from the stored state until the next suspension or a
// terminal outcome.
func (m *Machine) resume() (any, bool, error) {
	m.state = Running
	for {
		ctx := newExecCtx(m.fn, m.env, m.args, m)
		out := m.interp.run(ctx)
		switch out.kind {
		case outYield:
			m.resumeAt = out.state
			m.state = Suspended
			if m.closing {
				return nil, false, CloseProtocolError{}
			}
			return out.val, true, nil
		case outReturn:
			m.state = Completed
			m.result = out.val
			return out.val, false, nil
		case outRaise:
			if out.exc.Reason == errClose {
				m.state = Closed
				return nil, false, nil
			}
			m.state = Raised
			return nil, false, out.exc
		case outDelegate:
			m.resumeAt = out.state
			sub, ok := out.sub.(Resumable)
			if !ok {
				m.pendingExc = &Exception{Reason: DelegationError{out.sub}}
				continue
			}
			// First resume of the sub-machine carries no input.
			v, more, err := sub.Advance(nil)
			if more {
				m.delegate = sub
				m.state = Suspended
				return v, true, nil
			}
			if err != nil {
				m.pendingExc = asException(err)
			} else {
				m.pendingInput = v
			}
		}
	}
}
