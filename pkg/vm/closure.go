package vm

import "github.com/loomlang/loom/pkg/ir"

// Closure is a function value: compiled code paired with the frame that was
// current at the moment of its creation. Invoking it hands the frame back as
// the implicit environment argument.
type Closure struct {
	fn     *ir.CompiledFunc
	env    *Frame
	interp *Interp
}

// Fn returns the compiled code of the closure.
func (c *Closure) Fn() *ir.CompiledFunc { return c.fn }

// Call invokes the closure. For generator and async functions this does not
// run the body: it allocates and returns the machine as the call result.
func (c *Closure) Call(args []any) (any, error) {
	if len(args) != len(c.fn.Params) {
		return nil, ArityError{Func: c.fn.Name, Want: len(c.fn.Params), Got: len(args)}
	}
	if c.fn.Generator {
		return newMachine(c, args), nil
	}
	out := c.interp.run(newExecCtx(c.fn, c.env, args, nil))
	switch out.kind {
	case outReturn:
		return out.val, nil
	case outRaise:
		return nil, out.exc
	default:
		// Suspension outcomes cannot escape a non-generator body.
		panic("vm: suspension in non-generator function")
	}
}
