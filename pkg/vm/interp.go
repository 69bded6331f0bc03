package vm

import (
	"fmt"

	"github.com/loomlang/loom/pkg/ir"
)

// Interp holds the module namespace shared by every function of a compiled
// module.
type Interp struct {
	globals map[string]any
}

// NewInterp creates an interpreter for a compiled module. Every top-level
// function is bound in the module namespace as a closure; extra entries
// (typically GoFn builtins supplied by the host) are merged in afterwards.
func NewInterp(mod *ir.CompiledModule, extra map[string]any) *Interp {
	in := &Interp{globals: make(map[string]any)}
	for _, fn := range mod.Funcs {
		in.globals[fn.Name] = &Closure{fn: fn, interp: in}
	}
	for k, v := range extra {
		in.globals[k] = v
	}
	return in
}

// Global returns a module-level binding.
func (in *Interp) Global(name string) (any, bool) {
	v, ok := in.globals[name]
	return v, ok
}

// outcome is how one execution of a body ends.
type outKind int

const (
	outReturn outKind = iota
	outRaise
	outYield
	outDelegate
)

type outcome struct {
	kind  outKind
	val   any        // outReturn, outYield
	exc   *Exception // outRaise
	state int        // outYield, outDelegate
	sub   any        // outDelegate
}

// execCtx is the transient execution state of one body run: registers,
// the current frame, and the machine when the body is a generator.
type execCtx struct {
	fn    *ir.CompiledFunc
	regs  []any
	env   *Frame // implicit environment argument
	frame *Frame // the function's own frame, or env when it has none
	mach  *Machine
}

func newExecCtx(fn *ir.CompiledFunc, env *Frame, args []any, m *Machine) *execCtx {
	regs := make([]any, fn.NumRegs)
	for i := range regs {
		regs[i] = Unset
	}
	for i, a := range args {
		regs[i] = a
	}
	ctx := &execCtx{fn: fn, regs: regs, env: env, mach: m}
	if fn.Frame == nil {
		// No frame of its own: nested definitions capture the defining
		// frame unchanged.
		ctx.frame = env
	} else if m != nil {
		ctx.frame = m.frame
	}
	return ctx
}

// get reads a register, faulting on the undefined sentinel.
func (ctx *execCtx) get(r ir.Reg) (any, error) {
	v := ctx.regs[r]
	if v == Unset {
		name := ctx.fn.RegNames[r]
		if name == "" {
			name = fmt.Sprintf("t%d", r)
		}
		for _, sr := range ctx.fn.SpillRegs {
			if sr == r {
				return nil, UnboundSpillError{name}
			}
		}
		return nil, UnboundVarError{name}
	}
	return v, nil
}

// run executes a body until it returns, raises out of the function, or
// suspends.
func (in *Interp) run(ctx *execCtx) outcome {
	fn := ctx.fn
	block := fn.Blocks[fn.Entry]
	var inflight *Exception
	ip := 0

	// unwind transfers control to the nearest handler willing to intercept
	// exc, or reports the raise out of the function. The close signal passes
	// through except handlers untouched; only cleanup handlers see it.
	unwind := func(exc *Exception) *outcome {
		h := block.Handler
		for h != ir.NoBlock && exc.Reason == errClose && fn.Blocks[h].Catch == ir.CatchExcept {
			h = fn.Blocks[h].Handler
		}
		if h == ir.NoBlock {
			return &outcome{kind: outRaise, exc: exc}
		}
		block = fn.Blocks[h]
		ip = 0
		inflight = exc
		return nil
	}
	fault := func(err error) *outcome {
		exc := asException(err)
		if inflight != nil && exc.Cause == nil && exc != inflight {
			exc.Cause = inflight
		}
		return unwind(exc)
	}

	for {
		instr := block.Instrs[ip]
		ip++
		switch op := instr.(type) {
		case *ir.ConstOp:
			ctx.regs[op.Dst] = op.Val
		case *ir.MoveOp:
			v, err := ctx.get(op.Src)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = v
		case *ir.BinOpOp:
			x, err := ctx.get(op.X)
			if err == nil {
				var y any
				y, err = ctx.get(op.Y)
				if err == nil {
					var v any
					v, err = binop(op.Op, x, y)
					if err == nil {
						ctx.regs[op.Dst] = v
					}
				}
			}
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
			}
		case *ir.CallOp:
			v, err := in.call(ctx, op)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = v
		case *ir.MakeClosureOp:
			ctx.regs[op.Dst] = &Closure{fn: op.Fn, env: ctx.frame, interp: in}
		case *ir.AllocFrameOp:
			ctx.frame = NewFrame(fn.Frame, ctx.env)
			if ctx.mach != nil {
				ctx.mach.frame = ctx.frame
			}
		case *ir.LoadEnvOp:
			v, err := ctx.frame.get(op.Hops, op.Name)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = v
		case *ir.StoreEnvOp:
			v, err := ctx.get(op.Src)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			ctx.frame.set(op.Hops, op.Name, v)
		case *ir.LoadGlobalOp:
			v, ok := in.globals[op.Name]
			if !ok {
				if out := fault(UnboundVarError{op.Name}); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = v
		case *ir.StoreGlobalOp:
			v, err := ctx.get(op.Src)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			in.globals[op.Name] = v
		case *ir.EnterWithOp:
			v, err := in.enterWith(ctx, op)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = v
		case *ir.ExitWithOp:
			mgr, err := ctx.get(op.Mgr)
			if err == nil {
				err = mgr.(ContextManager).Exit()
			}
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
			}
		case *ir.SpillOp:
			// Verbatim, sentinel included.
			ctx.mach.slots[op.Slot] = ctx.regs[op.Src]
		case *ir.ReloadOp:
			ctx.regs[op.Dst] = ctx.mach.slots[op.Slot]
		case *ir.LoadStateOp:
			ctx.regs[op.Dst] = ctx.mach.resumeAt
		case *ir.TakeInputOp:
			m := ctx.mach
			if m.pendingExc != nil {
				exc := m.pendingExc
				m.pendingExc = nil
				if out := unwind(exc); out != nil {
					return *out
				}
				continue
			}
			ctx.regs[op.Dst] = m.pendingInput
			m.pendingInput = nil
		case *ir.CatchExcOp:
			ctx.regs[op.Dst] = inflight
			// The exception stays in flight until the handler finishes, for
			// cause chaining.
		case *ir.ClearExcOp:
			inflight = nil

		case *ir.JumpOp:
			block = fn.Blocks[op.To]
			ip = 0
		case *ir.BranchOp:
			v, err := ctx.get(op.Cond)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			if Truthy(v) {
				block = fn.Blocks[op.Then]
			} else {
				block = fn.Blocks[op.Else]
			}
			ip = 0
		case *ir.SwitchOp:
			i, _ := ctx.regs[op.Src].(int)
			if i >= 0 && i < len(op.Targets) {
				block = fn.Blocks[op.Targets[i]]
			} else {
				block = fn.Blocks[op.Default]
			}
			ip = 0
		case *ir.ReturnOp:
			if op.Val == ir.NoReg {
				return outcome{kind: outReturn, val: nil}
			}
			v, err := ctx.get(op.Val)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			return outcome{kind: outReturn, val: v}
		case *ir.RaiseOp:
			v, err := ctx.get(op.Val)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			exc := toException(v)
			if inflight != nil && exc.Cause == nil && exc != inflight {
				exc.Cause = inflight
			}
			if out := unwind(exc); out != nil {
				return *out
			}
		case *ir.YieldOp:
			v, err := ctx.get(op.Val)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			return outcome{kind: outYield, val: v, state: op.State}
		case *ir.DelegateOp:
			v, err := ctx.get(op.Sub)
			if err != nil {
				if out := fault(err); out != nil {
					return *out
				}
				continue
			}
			return outcome{kind: outDelegate, sub: v, state: op.State}
		default:
			panic(fmt.Sprintf("vm: unknown instruction %T", instr))
		}
	}
}

func (in *Interp) call(ctx *execCtx, op *ir.CallOp) (any, error) {
	fnv, err := ctx.get(op.Fn)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(op.Args))
	for i, r := range op.Args {
		args[i], err = ctx.get(r)
		if err != nil {
			return nil, err
		}
	}
	switch fnv := fnv.(type) {
	case *Closure:
		return fnv.Call(args)
	case GoFn:
		return fnv(args)
	default:
		return nil, fmt.Errorf("%T is not callable", fnv)
	}
}

func (in *Interp) enterWith(ctx *execCtx, op *ir.EnterWithOp) (any, error) {
	mgr, err := ctx.get(op.Mgr)
	if err != nil {
		return nil, err
	}
	cm, ok := mgr.(ContextManager)
	if !ok {
		return nil, fmt.Errorf("%T is not a context manager", mgr)
	}
	return cm.Enter()
}
