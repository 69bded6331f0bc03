package lower

import (
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/scope"
)

// rewriteClosures rewrites, in place, every access to a captured variable in
// the scope tree: escaping locals become fields of the scope's own frame
// (zero hops), free variables become fields reached through parent-frame
// links. Plain locals and globals are left alone.
func rewriteClosures(sc *scope.Scope) {
	rw := &rewriter{sc}
	rw.stmts(sc.Fn.Body)
	for _, child := range sc.Children {
		rewriteClosures(child)
	}
}

type rewriter struct {
	sc *scope.Scope
}

func (rw *rewriter) target(t ir.Target) ir.Target {
	nt, ok := t.(*ir.NameTarget)
	if !ok {
		return t
	}
	switch rw.sc.KindOf(nt.Name) {
	case scope.Escaping:
		return &ir.EnvTarget{Hops: 0, Name: nt.Name, Ranging: nt.Ranging}
	case scope.Free:
		return &ir.EnvTarget{Hops: rw.sc.Hops(nt.Name), Name: nt.Name, Ranging: nt.Ranging}
	}
	return t
}

func (rw *rewriter) stmts(stmts []ir.Stmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ir.Assign:
			st.Target = rw.target(st.Target)
			st.Value = rw.expr(st.Value)
		case *ir.ExprStmt:
			st.X = rw.expr(st.X)
		case *ir.If:
			st.Cond = rw.expr(st.Cond)
			rw.stmts(st.Then)
			rw.stmts(st.Else)
		case *ir.While:
			st.Cond = rw.expr(st.Cond)
			rw.stmts(st.Body)
		case *ir.Return:
			if st.Value != nil {
				st.Value = rw.expr(st.Value)
			}
		case *ir.Raise:
			st.Value = rw.expr(st.Value)
		case *ir.TryFinally:
			rw.stmts(st.Body)
			rw.stmts(st.Finally)
		case *ir.TryExcept:
			rw.stmts(st.Body)
			rw.stmts(st.Handler)
		case *ir.With:
			st.Ctx = rw.expr(st.Ctx)
			rw.stmts(st.Body)
		}
	}
}

func (rw *rewriter) expr(e ir.Expr) ir.Expr {
	switch e := e.(type) {
	case *ir.Name:
		switch rw.sc.KindOf(e.Ident) {
		case scope.Escaping:
			return &ir.EnvRef{Hops: 0, Name: e.Ident, Ranging: e.Ranging}
		case scope.Free:
			return &ir.EnvRef{Hops: rw.sc.Hops(e.Ident), Name: e.Ident, Ranging: e.Ranging}
		}
		return e
	case *ir.BinOp:
		e.X = rw.expr(e.X)
		e.Y = rw.expr(e.Y)
	case *ir.Call:
		e.Fn = rw.expr(e.Fn)
		for i, a := range e.Args {
			e.Args[i] = rw.expr(a)
		}
	case *ir.Yield:
		if e.Value != nil {
			e.Value = rw.expr(e.Value)
		}
	case *ir.YieldFrom:
		e.X = rw.expr(e.X)
	case *ir.Await:
		e.X = rw.expr(e.X)
	}
	return e
}
