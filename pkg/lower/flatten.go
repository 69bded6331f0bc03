package lower

import (
	"fmt"

	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/scope"
)

// flatten lowers a structured, closure-rewritten body to a flat register CFG.
// try/finally and with bodies get a handler block; break, continue and return
// that cross a cleanup region run a private copy of the cleanup code, so the
// cleanup executes exactly once on every way out.
func flatten(sc *scope.Scope, compiled map[*ir.Func]*ir.CompiledFunc, numPoints int) *ir.CompiledFunc {
	fn := sc.Fn
	cf := &ir.CompiledFunc{
		Name:      fn.Name,
		Params:    append([]string(nil), fn.Params...),
		HasEnv:    sc.Parent != nil,
		Frame:     buildFrameInfo(sc),
		Generator: numPoints > 0,
		NumStates: numPoints + 1,
		Ranging:   fn.Ranging,
	}
	f := &flattener{
		sc:        sc,
		cf:        cf,
		compiled:  compiled,
		handler:   ir.NoBlock,
		regs:      make(map[string]ir.Reg),
		control:   funcControl{},
		nextState: numPoints + 1,
		stateSeen: make(map[int]bool),
	}
	// Parameters occupy the first registers, in order, even when they are
	// promoted to the frame.
	for _, p := range fn.Params {
		f.regs[p] = cf.NewNamedReg(p)
	}
	f.cur = cf.NewBlock(ir.NoBlock)
	if cf.Frame != nil {
		f.emit(&ir.AllocFrameOp{Ranging: fn.Ranging})
		for _, p := range fn.Params {
			if sc.KindOf(p) == scope.Escaping {
				f.emit(&ir.StoreEnvOp{Hops: 0, Name: p, Src: f.regs[p], Ranging: fn.Ranging})
			}
		}
	}
	f.stmts(fn.Body)
	cf.NumStates = f.nextState
	if f.cur != nil {
		r := diag.PointRanging(fn.To)
		v := f.constVal(nil, r)
		f.term(&ir.ReturnOp{Val: v, Ranging: r})
	}
	// Unreachable tails can be left open; give them a terminator so every
	// block is well formed.
	for _, b := range cf.Blocks {
		if len(b.Instrs) == 0 || !ir.IsTerminator(b.Term()) {
			b.Instrs = append(b.Instrs, &ir.ReturnOp{Val: ir.NoReg})
		}
	}
	return cf
}

type flattener struct {
	sc       *scope.Scope
	cf       *ir.CompiledFunc
	compiled map[*ir.Func]*ir.CompiledFunc
	// cur is the block being appended to; nil right after a terminator.
	cur *ir.Block
	// handler is the handler block for newly created blocks.
	handler ir.BlockID
	regs    map[string]ir.Reg
	// control is the top of the nonlocal-control stack: it knows how to
	// leave the current statement context via break, continue or return.
	control control
	// Cleanup code is duplicated per exit path, so a yield inside a finally
	// is emitted more than once; re-emissions get fresh state ids.
	nextState int
	stateSeen map[int]bool
}

func (f *flattener) errorf(r diag.Ranger, format string, args ...any) {
	panic(&diag.Error{
		Type:    lowerErrorType,
		Message: fmt.Sprintf(format, args...),
		Context: diag.Context{Name: f.cf.Name, Ranging: r.Range()},
	})
}

func (f *flattener) emit(in ir.Instr) {
	if f.cur == nil {
		f.cur = f.cf.NewBlock(f.handler)
	}
	f.cur.Instrs = append(f.cur.Instrs, in)
}

func (f *flattener) term(in ir.Instr) {
	f.emit(in)
	f.cur = nil
}

// jumpTo seals the current block with a jump to b and continues there.
func (f *flattener) jumpTo(b *ir.Block) {
	if f.cur != nil {
		f.term(&ir.JumpOp{To: b.ID})
	}
	f.cur = b
}

func (f *flattener) localReg(name string) ir.Reg {
	if r, ok := f.regs[name]; ok {
		return r
	}
	r := f.cf.NewNamedReg(name)
	f.regs[name] = r
	return r
}

func (f *flattener) constVal(v any, r diag.Ranging) ir.Reg {
	dst := f.cf.NewReg()
	f.emit(&ir.ConstOp{Dst: dst, Val: v, Ranging: r})
	return dst
}

// assignName stores src into a bare name, indirecting through the frame when
// the name is captured. Used for bindings the closure rewriter does not see
// as assignment targets: except clauses, with clauses and nested defs.
func (f *flattener) assignName(name string, src ir.Reg, r diag.Ranging) {
	switch f.sc.KindOf(name) {
	case scope.Local:
		f.emit(&ir.MoveOp{Dst: f.localReg(name), Src: src, Ranging: r})
	case scope.Escaping:
		f.emit(&ir.StoreEnvOp{Hops: 0, Name: name, Src: src, Ranging: r})
	case scope.Free:
		f.emit(&ir.StoreEnvOp{Hops: f.sc.Hops(name), Name: name, Src: src, Ranging: r})
	case scope.Global:
		f.emit(&ir.StoreGlobalOp{Name: name, Src: src, Ranging: r})
	}
}

// Nonlocal control, after mypyc's nonlocalcontrol: each layer knows how to
// leave its context, running any cleanup it owns before delegating outward.

type control interface {
	genBreak(f *flattener, r diag.Ranging)
	genContinue(f *flattener, r diag.Ranging)
	genReturn(f *flattener, val ir.Reg, r diag.Ranging)
}

type funcControl struct{}

func (funcControl) genBreak(f *flattener, r diag.Ranging) {
	f.errorf(r, "break outside loop")
}

func (funcControl) genContinue(f *flattener, r diag.Ranging) {
	f.errorf(r, "continue outside loop")
}

func (funcControl) genReturn(f *flattener, val ir.Reg, r diag.Ranging) {
	f.term(&ir.ReturnOp{Val: val, Ranging: r})
}

type loopControl struct {
	outer               control
	breakTo, continueTo ir.BlockID
}

func (c loopControl) genBreak(f *flattener, r diag.Ranging) {
	f.term(&ir.JumpOp{To: c.breakTo, Ranging: r})
}

func (c loopControl) genContinue(f *flattener, r diag.Ranging) {
	f.term(&ir.JumpOp{To: c.continueTo, Ranging: r})
}

func (c loopControl) genReturn(f *flattener, val ir.Reg, r diag.Ranging) {
	c.outer.genReturn(f, val, r)
}

// cleanupControl runs a copy of its cleanup code before any transfer that
// leaves the region, then delegates to the enclosing control.
type cleanupControl struct {
	outer control
	// outerHandler is the handler in effect outside the region; the cleanup
	// copy must not be protected by the region's own handler.
	outerHandler ir.BlockID
	emit         func(f *flattener)
}

func (c cleanupControl) run(f *flattener) {
	saved := f.handler
	f.handler = c.outerHandler
	b := f.cf.NewBlock(f.handler)
	f.jumpTo(b)
	c.emit(f)
	f.handler = saved
}

func (c cleanupControl) genBreak(f *flattener, r diag.Ranging) {
	c.run(f)
	c.outer.genBreak(f, r)
}

func (c cleanupControl) genContinue(f *flattener, r diag.Ranging) {
	c.run(f)
	c.outer.genContinue(f, r)
}

func (c cleanupControl) genReturn(f *flattener, val ir.Reg, r diag.Ranging) {
	c.run(f)
	c.outer.genReturn(f, val, r)
}

// Statements.

func (f *flattener) stmts(stmts []ir.Stmt) {
	for _, st := range stmts {
		f.stmt(st)
	}
}

func (f *flattener) stmt(st ir.Stmt) {
	switch st := st.(type) {
	case *ir.Assign:
		v := f.expr(st.Value)
		switch t := st.Target.(type) {
		case *ir.NameTarget:
			f.assignName(t.Name, v, t.Ranging)
		case *ir.EnvTarget:
			f.emit(&ir.StoreEnvOp{Hops: t.Hops, Name: t.Name, Src: v, Ranging: t.Ranging})
		}
	case *ir.ExprStmt:
		f.expr(st.X)
	case *ir.If:
		c := f.expr(st.Cond)
		thenB := f.cf.NewBlock(f.handler)
		elseB := f.cf.NewBlock(f.handler)
		contB := f.cf.NewBlock(f.handler)
		f.term(&ir.BranchOp{Cond: c, Then: thenB.ID, Else: elseB.ID, Ranging: st.Ranging})
		f.cur = thenB
		f.stmts(st.Then)
		f.jumpTo(contB)
		f.cur = elseB
		f.stmts(st.Else)
		f.jumpTo(contB)
	case *ir.While:
		condB := f.cf.NewBlock(f.handler)
		exitB := f.cf.NewBlock(f.handler)
		f.jumpTo(condB)
		c := f.expr(st.Cond)
		bodyB := f.cf.NewBlock(f.handler)
		f.term(&ir.BranchOp{Cond: c, Then: bodyB.ID, Else: exitB.ID, Ranging: st.Ranging})
		f.cur = bodyB
		saved := f.control
		f.control = loopControl{outer: saved, breakTo: exitB.ID, continueTo: condB.ID}
		f.stmts(st.Body)
		f.control = saved
		f.jumpTo(condB)
		f.cur = exitB
	case *ir.Break:
		f.control.genBreak(f, st.Ranging)
	case *ir.Continue:
		f.control.genContinue(f, st.Ranging)
	case *ir.Return:
		var v ir.Reg
		if st.Value != nil {
			v = f.expr(st.Value)
		} else {
			v = f.constVal(nil, st.Ranging)
		}
		f.control.genReturn(f, v, st.Ranging)
	case *ir.Raise:
		v := f.expr(st.Value)
		f.term(&ir.RaiseOp{Val: v, Ranging: st.Ranging})
	case *ir.TryFinally:
		f.tryFinally(st.Body, st.Ranging, func(f *flattener) {
			f.stmts(st.Finally)
		})
	case *ir.TryExcept:
		contB := f.cf.NewBlock(f.handler)
		hb := f.cf.NewBlock(f.handler)
		hb.Catch = ir.CatchExcept
		saved := f.handler
		f.handler = hb.ID
		// The block in progress predates the handler; the protected body
		// must start in a block of its own.
		f.jumpTo(f.cf.NewBlock(f.handler))
		f.stmts(st.Body)
		f.handler = saved
		f.jumpTo(contB)
		f.cur = hb
		exc := f.cf.NewReg()
		f.emit(&ir.CatchExcOp{Dst: exc, Ranging: st.Ranging})
		if st.Name != "" {
			f.assignName(st.Name, exc, st.Ranging)
		}
		f.stmts(st.Handler)
		if f.cur != nil {
			f.emit(&ir.ClearExcOp{Ranging: st.Ranging})
		}
		f.jumpTo(contB)
	case *ir.With:
		mgr := f.expr(st.Ctx)
		res := f.cf.NewReg()
		f.emit(&ir.EnterWithOp{Dst: res, Mgr: mgr, Ranging: st.Ranging})
		if st.Name != "" {
			f.assignName(st.Name, res, st.Ranging)
		}
		f.tryFinally(st.Body, st.Ranging, func(f *flattener) {
			f.emit(&ir.ExitWithOp{Mgr: mgr, Ranging: st.Ranging})
		})
	case *ir.FuncDef:
		cfn := f.compiled[st.Fn]
		dst := f.cf.NewReg()
		f.emit(&ir.MakeClosureOp{Dst: dst, Fn: cfn, Ranging: st.Ranging})
		f.assignName(st.Fn.Name, dst, st.Ranging)
	}
}

// tryFinally flattens a region whose cleanup must run on fall-through,
// break, continue, return, exception and close.
func (f *flattener) tryFinally(body []ir.Stmt, r diag.Ranging, cleanup func(f *flattener)) {
	contB := f.cf.NewBlock(f.handler)
	hb := f.cf.NewBlock(f.handler)
	hb.Catch = ir.CatchCleanup
	saved := f.handler
	f.handler = hb.ID
	// The block in progress predates the handler; the protected body must
	// start in a block of its own.
	f.jumpTo(f.cf.NewBlock(f.handler))
	f.control = cleanupControl{outer: f.control, outerHandler: saved, emit: cleanup}
	f.stmts(body)
	f.control = f.control.(cleanupControl).outer
	f.handler = saved
	// Normal completion runs its own copy of the cleanup, in a fresh block
	// no longer protected by the region's handler.
	if f.cur != nil {
		nb := f.cf.NewBlock(f.handler)
		f.jumpTo(nb)
		cleanup(f)
	}
	f.jumpTo(contB)
	// Exception (and close) path: run the cleanup, then re-raise.
	f.cur = hb
	exc := f.cf.NewReg()
	f.emit(&ir.CatchExcOp{Dst: exc, Ranging: r})
	cleanup(f)
	f.term(&ir.RaiseOp{Val: exc, Ranging: r})
	f.cur = contB
}

// Expressions.

func (f *flattener) expr(e ir.Expr) ir.Reg {
	switch e := e.(type) {
	case *ir.Const:
		return f.constVal(e.Value, e.Ranging)
	case *ir.Name:
		switch f.sc.KindOf(e.Ident) {
		case scope.Global:
			dst := f.cf.NewReg()
			f.emit(&ir.LoadGlobalOp{Dst: dst, Name: e.Ident, Ranging: e.Ranging})
			return dst
		default:
			return f.localReg(e.Ident)
		}
	case *ir.EnvRef:
		dst := f.cf.NewReg()
		f.emit(&ir.LoadEnvOp{Dst: dst, Hops: e.Hops, Name: e.Name, Ranging: e.Ranging})
		return dst
	case *ir.BinOp:
		x := f.expr(e.X)
		y := f.expr(e.Y)
		dst := f.cf.NewReg()
		f.emit(&ir.BinOpOp{Dst: dst, Op: e.Op, X: x, Y: y, Ranging: e.Ranging})
		return dst
	case *ir.Call:
		fn := f.expr(e.Fn)
		args := make([]ir.Reg, len(e.Args))
		for i, a := range e.Args {
			args[i] = f.expr(a)
		}
		dst := f.cf.NewReg()
		f.emit(&ir.CallOp{Dst: dst, Fn: fn, Args: args, Ranging: e.Ranging})
		return dst
	case *ir.Yield:
		var v ir.Reg
		if e.Value != nil {
			v = f.expr(e.Value)
		} else {
			v = f.constVal(nil, e.Ranging)
		}
		return f.suspend(&ir.YieldOp{Val: v, State: f.stateID(e.State), Ranging: e.Ranging}, e.Ranging)
	case *ir.YieldFrom:
		sub := f.expr(e.X)
		return f.suspend(&ir.DelegateOp{Sub: sub, State: f.stateID(e.State), Ranging: e.Ranging}, e.Ranging)
	case *ir.Await:
		sub := f.expr(e.X)
		return f.suspend(&ir.DelegateOp{Sub: sub, State: f.stateID(e.State), Ranging: e.Ranging}, e.Ranging)
	}
	f.errorf(e, "cannot lower expression %T", e)
	panic("unreachable")
}

// stateID returns the discovered state id the first time a suspension point
// is emitted, and a fresh id for re-emissions in duplicated cleanup code.
func (f *flattener) stateID(discovered int) int {
	if !f.stateSeen[discovered] {
		f.stateSeen[discovered] = true
		return discovered
	}
	id := f.nextState
	f.nextState++
	return id
}

// suspend emits a suspension terminator and its resume block, and returns the
// register holding the value the driver resumed with.
func (f *flattener) suspend(term ir.Instr, r diag.Ranging) ir.Reg {
	rb := f.cf.NewBlock(f.handler)
	switch t := term.(type) {
	case *ir.YieldOp:
		t.Resume = rb.ID
	case *ir.DelegateOp:
		t.Resume = rb.ID
	}
	f.term(term)
	f.cur = rb
	dst := f.cf.NewReg()
	f.emit(&ir.TakeInputOp{Dst: dst, Ranging: r})
	return dst
}
