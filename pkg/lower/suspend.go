package lower

import (
	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
)

// Point is a discovered suspension point.
type Point struct {
	// State is the resume state id. State 0 is reserved for function entry,
	// so discovered points number from 1.
	State int
	// Delegating reports a yield-from or await.
	Delegating bool
	diag.Ranging
}

// Discover walks a function body, assigns a monotonically increasing state id
// to every yield, yield-from and await expression, and returns the points in
// source order. Nested function bodies are not entered; their suspension
// points belong to their own machines.
func Discover(fn *ir.Func) []Point {
	d := &discoverer{}
	d.stmts(fn.Body)
	return d.points
}

type discoverer struct {
	points []Point
}

func (d *discoverer) mark(delegating bool, r diag.Ranging) int {
	state := len(d.points) + 1
	d.points = append(d.points, Point{State: state, Delegating: delegating, Ranging: r})
	return state
}

func (d *discoverer) stmts(stmts []ir.Stmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ir.Assign:
			d.expr(st.Value)
		case *ir.ExprStmt:
			d.expr(st.X)
		case *ir.If:
			d.expr(st.Cond)
			d.stmts(st.Then)
			d.stmts(st.Else)
		case *ir.While:
			d.expr(st.Cond)
			d.stmts(st.Body)
		case *ir.Return:
			if st.Value != nil {
				d.expr(st.Value)
			}
		case *ir.Raise:
			d.expr(st.Value)
		case *ir.TryFinally:
			d.stmts(st.Body)
			d.stmts(st.Finally)
		case *ir.TryExcept:
			d.stmts(st.Body)
			d.stmts(st.Handler)
		case *ir.With:
			d.expr(st.Ctx)
			d.stmts(st.Body)
		}
	}
}

func (d *discoverer) expr(e ir.Expr) {
	switch e := e.(type) {
	case *ir.BinOp:
		d.expr(e.X)
		d.expr(e.Y)
	case *ir.Call:
		d.expr(e.Fn)
		for _, a := range e.Args {
			d.expr(a)
		}
	case *ir.Yield:
		if e.Value != nil {
			d.expr(e.Value)
		}
		e.State = d.mark(false, e.Ranging)
	case *ir.YieldFrom:
		d.expr(e.X)
		e.State = d.mark(true, e.Ranging)
	case *ir.Await:
		d.expr(e.X)
		e.State = d.mark(true, e.Ranging)
	}
}
