// Package lower turns the structured function bodies produced by the front
// end into flat register CFGs: closures become heap frames with explicit
// parent links, and generator and async bodies become resumable state
// machines.
package lower

import (
	"github.com/charmbracelet/log"

	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/scope"
)

const lowerErrorType = "lowering error"

// Module lowers every function of a module. The returned error, if any, is a
// *diag.Error describing a capture or lowering problem.
func Module(m *ir.Module, src ir.Source) (cm *ir.CompiledModule, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		} else if e, ok := r.(*diag.Error); ok && e.Type == lowerErrorType {
			err = e
		} else {
			panic(r)
		}
	}()
	cm = &ir.CompiledModule{Name: m.Name}
	for _, fn := range m.Funcs {
		cf, err := Func(fn, src)
		if err != nil {
			return nil, err
		}
		cm.Funcs = append(cm.Funcs, cf)
	}
	return cm, nil
}

// Func lowers one top-level function and its nested functions.
func Func(fn *ir.Func, src ir.Source) (*ir.CompiledFunc, error) {
	sc, err := scope.Analyze(fn, src)
	if err != nil {
		return nil, err
	}
	rewriteClosures(sc)
	return compileScope(sc), nil
}

// compileScope lowers a scope bottom-up: nested functions first, so that
// MakeClosure instructions can reference their compiled form.
func compileScope(sc *scope.Scope) *ir.CompiledFunc {
	compiled := make(map[*ir.Func]*ir.CompiledFunc, len(sc.Children))
	for _, child := range sc.Children {
		compiled[child.Fn] = compileScope(child)
	}
	points := Discover(sc.Fn)
	cf := flatten(sc, compiled, len(points))
	transform(cf)
	log.Debug("lowered function", "name", cf.Name,
		"blocks", len(cf.Blocks), "generator", cf.Generator,
		"states", cf.NumStates, "spills", len(cf.SpillRegs))
	return cf
}
