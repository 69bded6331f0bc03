// Package scope implements lexical scope analysis: it builds the nesting tree
// of a top-level function and classifies every name so that later passes know
// which locals need heap frames.
package scope

import (
	"fmt"

	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
)

// Kind classifies a name within one scope.
type Kind int

const (
	// Local is a plain local, stored in a register.
	Local Kind = iota
	// Escaping is a local referenced by some nested function, stored in the
	// scope's frame.
	Escaping
	// Free is a reference to an Escaping local of an enclosing scope.
	Free
	// Global is a reference to the module namespace.
	Global
)

var kindNames = [...]string{"local", "escaping", "free", "global"}

func (k Kind) String() string { return kindNames[k] }

// Scope holds the analysis results for one function.
type Scope struct {
	Fn     *ir.Func
	Parent *Scope
	// Children are the scopes of nested functions, in definition order.
	Children []*Scope
	// Locals are the declared locals in declaration order, parameters first.
	// Names declared nonlocal or global are not locals.
	Locals []string
	// RefsAncestor reports whether this scope, or a descendant reaching
	// through it, accesses a frame of an enclosing scope.
	RefsAncestor bool

	localSet map[string]bool
	nonlocal map[string]bool
	global   map[string]bool
	kinds    map[string]Kind
	owner    map[string]*Scope
	escaping map[string]bool
	byFn     map[*ir.Func]*Scope
}

const captureErrorType = "capture error"

// Analyze builds and classifies the scope tree rooted at a top-level
// function. The returned error, if any, is a *diag.Error of type
// "capture error".
func Analyze(fn *ir.Func, src ir.Source) (sc *Scope, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		} else if e, ok := r.(*diag.Error); ok && e.Type == captureErrorType {
			err = e
		} else {
			panic(r)
		}
	}()
	sc = build(fn, nil)
	sc.resolve(src)
	return sc, nil
}

func build(fn *ir.Func, parent *Scope) *Scope {
	sc := &Scope{
		Fn:       fn,
		Parent:   parent,
		localSet: make(map[string]bool),
		nonlocal: make(map[string]bool),
		global:   make(map[string]bool),
		kinds:    make(map[string]Kind),
		owner:    make(map[string]*Scope),
		escaping: make(map[string]bool),
		byFn:     make(map[*ir.Func]*Scope),
	}
	for _, n := range fn.Nonlocal {
		sc.nonlocal[n] = true
	}
	for _, n := range fn.Global {
		sc.global[n] = true
	}
	for _, p := range fn.Params {
		sc.addLocal(p)
	}
	collectStmts(sc, fn.Body)
	return sc
}

func (sc *Scope) addLocal(name string) {
	if sc.localSet[name] || sc.nonlocal[name] || sc.global[name] {
		return
	}
	sc.localSet[name] = true
	sc.Locals = append(sc.Locals, name)
}

// A name assigned without a nonlocal declaration is a fresh local, shadowing
// any enclosing binding. Only declarations are collected here; references are
// classified lazily in resolve.
func collectStmts(sc *Scope, stmts []ir.Stmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ir.Assign:
			if t, ok := st.Target.(*ir.NameTarget); ok {
				sc.addLocal(t.Name)
			}
		case *ir.If:
			collectStmts(sc, st.Then)
			collectStmts(sc, st.Else)
		case *ir.While:
			collectStmts(sc, st.Body)
		case *ir.TryFinally:
			collectStmts(sc, st.Body)
			collectStmts(sc, st.Finally)
		case *ir.TryExcept:
			collectStmts(sc, st.Body)
			if st.Name != "" {
				sc.addLocal(st.Name)
			}
			collectStmts(sc, st.Handler)
		case *ir.With:
			if st.Name != "" {
				sc.addLocal(st.Name)
			}
			collectStmts(sc, st.Body)
		case *ir.FuncDef:
			sc.addLocal(st.Fn.Name)
			child := build(st.Fn, sc)
			sc.Children = append(sc.Children, child)
			sc.byFn[st.Fn] = child
		}
	}
}

func (sc *Scope) resolve(src ir.Source) {
	// Bind nonlocal declarations first: a nonlocal that resolves nowhere is
	// a compile error even if the name is never referenced.
	for _, n := range sc.Fn.Nonlocal {
		owner := sc.findOwner(n)
		if owner == nil {
			panic(&diag.Error{
				Type:    captureErrorType,
				Message: fmt.Sprintf("no binding for nonlocal %q", n),
				Context: *diag.NewContext(src.Name, src.Code, sc.Fn),
			})
		}
		sc.capture(n, owner)
	}
	resolveRefs(sc, sc.Fn.Body)
	for _, child := range sc.Children {
		child.resolve(src)
	}
}

// findOwner walks the parent chain for the scope that declares name as a
// local, skipping scopes that themselves declared it nonlocal.
func (sc *Scope) findOwner(name string) *Scope {
	for s := sc.Parent; s != nil; s = s.Parent {
		if s.localSet[name] && !s.nonlocal[name] {
			return s
		}
	}
	return nil
}

// capture marks name as Free here, Escaping at its owner, and every scope in
// between as needing a path to an ancestor frame.
func (sc *Scope) capture(name string, owner *Scope) {
	sc.kinds[name] = Free
	sc.owner[name] = owner
	if !owner.escaping[name] {
		owner.escaping[name] = true
		owner.kinds[name] = Escaping
	}
	for s := sc; s != owner; s = s.Parent {
		s.RefsAncestor = true
	}
}

func (sc *Scope) resolveName(name string) {
	if _, done := sc.kinds[name]; done {
		return
	}
	switch {
	case sc.localSet[name]:
		sc.kinds[name] = Local
	case sc.global[name]:
		sc.kinds[name] = Global
	default:
		if owner := sc.findOwner(name); owner != nil {
			sc.capture(name, owner)
		} else {
			sc.kinds[name] = Global
		}
	}
}

func resolveRefs(sc *Scope, stmts []ir.Stmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ir.Assign:
			if t, ok := st.Target.(*ir.NameTarget); ok {
				sc.resolveName(t.Name)
			}
			resolveExpr(sc, st.Value)
		case *ir.ExprStmt:
			resolveExpr(sc, st.X)
		case *ir.If:
			resolveExpr(sc, st.Cond)
			resolveRefs(sc, st.Then)
			resolveRefs(sc, st.Else)
		case *ir.While:
			resolveExpr(sc, st.Cond)
			resolveRefs(sc, st.Body)
		case *ir.Return:
			if st.Value != nil {
				resolveExpr(sc, st.Value)
			}
		case *ir.Raise:
			resolveExpr(sc, st.Value)
		case *ir.TryFinally:
			resolveRefs(sc, st.Body)
			resolveRefs(sc, st.Finally)
		case *ir.TryExcept:
			resolveRefs(sc, st.Body)
			if st.Name != "" {
				sc.resolveName(st.Name)
			}
			resolveRefs(sc, st.Handler)
		case *ir.With:
			resolveExpr(sc, st.Ctx)
			if st.Name != "" {
				sc.resolveName(st.Name)
			}
			resolveRefs(sc, st.Body)
		case *ir.FuncDef:
			sc.resolveName(st.Fn.Name)
		}
	}
}

func resolveExpr(sc *Scope, e ir.Expr) {
	switch e := e.(type) {
	case *ir.Name:
		sc.resolveName(e.Ident)
	case *ir.BinOp:
		resolveExpr(sc, e.X)
		resolveExpr(sc, e.Y)
	case *ir.Call:
		resolveExpr(sc, e.Fn)
		for _, a := range e.Args {
			resolveExpr(sc, a)
		}
	case *ir.Yield:
		if e.Value != nil {
			resolveExpr(sc, e.Value)
		}
	case *ir.YieldFrom:
		resolveExpr(sc, e.X)
	case *ir.Await:
		resolveExpr(sc, e.X)
	}
}

// KindOf returns the classification of a name in this scope.
func (sc *Scope) KindOf(name string) Kind {
	if k, ok := sc.kinds[name]; ok {
		return k
	}
	if sc.localSet[name] {
		return Local
	}
	return Global
}

// Hops returns the number of parent-frame links between this scope's frame
// and the frame owning a Free name.
func (sc *Scope) Hops(name string) int {
	owner := sc.owner[name]
	hops := 0
	for s := sc; s != owner; s = s.Parent {
		hops++
	}
	return hops
}

// EscapingLocals returns the locals captured by some descendant, in
// declaration order.
func (sc *Scope) EscapingLocals() []string {
	var out []string
	for _, n := range sc.Locals {
		if sc.escaping[n] {
			out = append(out, n)
		}
	}
	return out
}

// NeedsFrame reports whether invocations of this scope allocate a frame.
func (sc *Scope) NeedsFrame() bool {
	return len(sc.EscapingLocals()) > 0 || sc.RefsAncestor
}

// ChildFor returns the scope of a directly nested function.
func (sc *Scope) ChildFor(fn *ir.Func) *Scope {
	return sc.byFn[fn]
}
