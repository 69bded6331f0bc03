// Package ir defines the two representations handled by the lowering
// pipeline: the structured bodies handed over by the front end, and the flat
// register CFGs consumed by the runtime.
package ir

import "github.com/loomlang/loom/pkg/diag"

// Source describes a piece of source code.
type Source struct {
	Name string
	Code string
}

// Module is a compilation unit: a set of top-level functions.
type Module struct {
	Name  string
	Funcs []*Func
}

// Func is a function body as produced by the front end. Nested functions
// appear as FuncDef statements in the body of their parent.
type Func struct {
	Name   string
	Params []string
	// Names declared nonlocal: assignments bind the nearest enclosing local
	// instead of creating a new one.
	Nonlocal []string
	// Names declared global: reads and writes go to the module namespace.
	Global []string
	Body   []Stmt
	diag.Ranging
}

// Stmt is a statement in a structured body.
type Stmt interface {
	diag.Ranger
	isStmt()
}

// Assign binds the value of an expression to a target.
type Assign struct {
	Target Target
	Value  Expr
	diag.Ranging
}

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	X Expr
	diag.Ranging
}

// If branches on a condition.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
	diag.Ranging
}

// While loops while a condition holds.
type While struct {
	Cond Expr
	Body []Stmt
	diag.Ranging
}

// Break exits the innermost loop.
type Break struct{ diag.Ranging }

// Continue restarts the innermost loop.
type Continue struct{ diag.Ranging }

// Return exits the function. A nil Value returns the nil value.
type Return struct {
	Value Expr
	diag.Ranging
}

// Raise raises an exception.
type Raise struct {
	Value Expr
	diag.Ranging
}

// TryFinally runs Finally on every way out of Body.
type TryFinally struct {
	Body    []Stmt
	Finally []Stmt
	diag.Ranging
}

// TryExcept catches exceptions raised in Body, binding the exception value to
// Name while running Handler.
type TryExcept struct {
	Body    []Stmt
	Name    string
	Handler []Stmt
	diag.Ranging
}

// With acquires a resource around Body: the result of entering Ctx is bound
// to Name, and the resource is released on every way out of Body.
type With struct {
	Ctx  Expr
	Name string
	Body []Stmt
	diag.Ranging
}

// FuncDef defines a nested function and binds it to a local of the same name.
type FuncDef struct {
	Fn *Func
	diag.Ranging
}

func (*Assign) isStmt()     {}
func (*ExprStmt) isStmt()   {}
func (*If) isStmt()         {}
func (*While) isStmt()      {}
func (*Break) isStmt()      {}
func (*Continue) isStmt()   {}
func (*Return) isStmt()     {}
func (*Raise) isStmt()      {}
func (*TryFinally) isStmt() {}
func (*TryExcept) isStmt()  {}
func (*With) isStmt()       {}
func (*FuncDef) isStmt()    {}

// Target is the destination of an assignment.
type Target interface {
	diag.Ranger
	isTarget()
}

// NameTarget assigns to a name in the current scope.
type NameTarget struct {
	Name string
	diag.Ranging
}

// EnvTarget assigns to a field of a frame reached through Hops parent links.
// It only appears after closure rewriting.
type EnvTarget struct {
	Hops int
	Name string
	diag.Ranging
}

func (*NameTarget) isTarget() {}
func (*EnvTarget) isTarget()  {}

// Expr is an expression in a structured body.
type Expr interface {
	diag.Ranger
	isExpr()
}

// Const is a literal value.
type Const struct {
	Value any
	diag.Ranging
}

// Name reads a name.
type Name struct {
	Ident string
	diag.Ranging
}

// EnvRef reads a field of a frame reached through Hops parent links. It only
// appears after closure rewriting.
type EnvRef struct {
	Hops int
	Name string
	diag.Ranging
}

// BinOp applies a binary operator.
type BinOp struct {
	Op string
	X  Expr
	Y  Expr
	diag.Ranging
}

// Call calls a function value.
type Call struct {
	Fn   Expr
	Args []Expr
	diag.Ranging
}

// Yield suspends the function, producing Value; its result is the value the
// driver resumes with. State is assigned by suspension point discovery.
type Yield struct {
	Value Expr
	State int
	diag.Ranging
}

// YieldFrom delegates to another resumable object until it completes; its
// result is the completion value. State is assigned by suspension point
// discovery.
type YieldFrom struct {
	X     Expr
	State int
	diag.Ranging
}

// Await is YieldFrom in an asynchronous function. The lowering is identical.
type Await struct {
	X     Expr
	State int
	diag.Ranging
}

func (*Const) isExpr()     {}
func (*Name) isExpr()      {}
func (*EnvRef) isExpr()    {}
func (*BinOp) isExpr()     {}
func (*Call) isExpr()      {}
func (*Yield) isExpr()     {}
func (*YieldFrom) isExpr() {}
func (*Await) isExpr()     {}
