package scope_test

import (
	"testing"

	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/scope"
)

func analyze(t *testing.T, code string) *scope.Scope {
	t.Helper()
	src := ir.Source{Name: "scope_test", Code: code}
	m, err := ir.ParseModule(&src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sc, err := scope.Analyze(m.Funcs[0], src)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return sc
}

func TestClassification(t *testing.T) {
	sc := analyze(t, `
name: test
funcs:
- name: outer
  params: [x]
  body:
  - assign: {to: plain, value: 1}
  - def:
      name: inner
      params: [y]
      body:
      - return: {binop: {op: "+", x: x, y: y}}
  - expr: {call: {fn: helper, args: [inner]}}
`)
	tests := []struct {
		name string
		want scope.Kind
	}{
		{"plain", scope.Local},
		{"x", scope.Escaping},
		{"inner", scope.Local},
		{"helper", scope.Global},
	}
	for _, test := range tests {
		if got := sc.KindOf(test.name); got != test.want {
			t.Errorf("KindOf(%q) = %v, want %v", test.name, got, test.want)
		}
	}

	inner := sc.Children[0]
	if got := inner.KindOf("x"); got != scope.Free {
		t.Errorf("inner KindOf(x) = %v, want free", got)
	}
	if got := inner.KindOf("y"); got != scope.Local {
		t.Errorf("inner KindOf(y) = %v, want local", got)
	}
	if got := inner.Hops("x"); got != 1 {
		t.Errorf("inner Hops(x) = %d, want 1", got)
	}
}

func TestAssignmentShadows(t *testing.T) {
	// An assignment without a nonlocal declaration binds a fresh local; the
	// enclosing x is untouched and stays in a register.
	sc := analyze(t, `
name: test
funcs:
- name: outer
  params: []
  body:
  - assign: {to: x, value: 1}
  - def:
      name: inner
      params: []
      body:
      - assign: {to: x, value: 2}
      - return: x
`)
	if got := sc.KindOf("x"); got != scope.Local {
		t.Errorf("outer KindOf(x) = %v, want local", got)
	}
	if got := sc.Children[0].KindOf("x"); got != scope.Local {
		t.Errorf("inner KindOf(x) = %v, want local", got)
	}
	if sc.NeedsFrame() {
		t.Error("outer needs a frame despite no captures")
	}
}

func TestNonlocalBinds(t *testing.T) {
	sc := analyze(t, `
name: test
funcs:
- name: outer
  params: []
  body:
  - assign: {to: x, value: 1}
  - def:
      name: inner
      params: []
      nonlocal: [x]
      body:
      - assign: {to: x, value: 2}
`)
	if got := sc.KindOf("x"); got != scope.Escaping {
		t.Errorf("outer KindOf(x) = %v, want escaping", got)
	}
	if got := sc.Children[0].KindOf("x"); got != scope.Free {
		t.Errorf("inner KindOf(x) = %v, want free", got)
	}
	if got := sc.EscapingLocals(); len(got) != 1 || got[0] != "x" {
		t.Errorf("EscapingLocals() = %v, want [x]", got)
	}
}

func TestNonlocalWithoutBinding(t *testing.T) {
	src := ir.Source{Name: "scope_test", Code: `
name: test
funcs:
- name: outer
  params: []
  body:
  - def:
      name: inner
      params: []
      nonlocal: [ghost]
      body:
      - assign: {to: ghost, value: 1}
`}
	m, err := ir.ParseModule(&src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = scope.Analyze(m.Funcs[0], src)
	de, ok := err.(*diag.Error)
	if !ok {
		t.Fatalf("Analyze error = %v, want *diag.Error", err)
	}
	if de.Type != "capture error" {
		t.Errorf("error type %q, want capture error", de.Type)
	}
}

func TestTransitiveCapture(t *testing.T) {
	// A capture through an intermediate scope forces the intermediate to be
	// frame-bearing, so hop counts equal lexical distance.
	sc := analyze(t, `
name: test
funcs:
- name: top
  params: [x]
  body:
  - def:
      name: mid
      params: []
      body:
      - def:
          name: leaf
          params: []
          body:
          - return: x
      - return: leaf
  - return: mid
`)
	mid := sc.Children[0]
	leaf := mid.Children[0]
	if got := leaf.Hops("x"); got != 2 {
		t.Errorf("leaf Hops(x) = %d, want 2", got)
	}
	if !mid.RefsAncestor {
		t.Error("mid does not reach an ancestor frame")
	}
	if !mid.NeedsFrame() {
		t.Error("mid needs a frame for the capture path")
	}
	if len(mid.EscapingLocals()) != 0 {
		t.Errorf("mid EscapingLocals() = %v, want none", mid.EscapingLocals())
	}
	if got := sc.EscapingLocals(); len(got) != 1 || got[0] != "x" {
		t.Errorf("top EscapingLocals() = %v, want [x]", got)
	}
}

func TestGlobalDeclaration(t *testing.T) {
	sc := analyze(t, `
name: test
funcs:
- name: f
  params: []
  global: [counter]
  body:
  - assign: {to: counter, value: 1}
  - return: counter
`)
	if got := sc.KindOf("counter"); got != scope.Global {
		t.Errorf("KindOf(counter) = %v, want global", got)
	}
	if len(sc.Locals) != 0 {
		t.Errorf("Locals = %v, want none", sc.Locals)
	}
}
