package lower_test

import (
	"testing"

	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/lower"
)

func lowerFirst(t *testing.T, code string) *ir.CompiledFunc {
	t.Helper()
	src := ir.Source{Name: "lower_test", Code: code}
	m, err := ir.ParseModule(&src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cm, err := lower.Module(m, src)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return cm.Funcs[0]
}

func TestGeneratorShape(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: counter
  params: [n]
  body:
  - assign: {to: i, value: 0}
  - while:
      cond: {binop: {op: "<", x: i, y: n}}
      body:
      - expr: {yield: i}
      - assign: {to: i, value: {binop: {op: "+", x: i, y: 1}}}
  - return: n
`)
	if !cf.Generator {
		t.Fatal("counter is not marked as a generator")
	}
	if cf.NumStates != 2 {
		t.Errorf("NumStates = %d, want 2 (entry plus one yield)", cf.NumStates)
	}
	if len(cf.SpillRegs) == 0 {
		t.Error("no registers spilled despite locals live across the yield")
	}

	// The entry must be a dispatch block switching on the stored state.
	entry := cf.Blocks[cf.Entry]
	sw, ok := entry.Term().(*ir.SwitchOp)
	if !ok {
		t.Fatalf("entry terminator is %T, want *ir.SwitchOp", entry.Term())
	}
	if len(sw.Targets) != cf.NumStates {
		t.Errorf("dispatch has %d targets, want %d", len(sw.Targets), cf.NumStates)
	}
}

func TestNonGeneratorUntouched(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: add
  params: [x, y]
  body:
  - return: {binop: {op: "+", x: x, y: y}}
`)
	if cf.Generator {
		t.Error("add is marked as a generator")
	}
	if cf.Entry != 0 {
		t.Errorf("Entry = %d, want 0", cf.Entry)
	}
	if cf.Frame != nil {
		t.Errorf("Frame = %+v, want none", cf.Frame)
	}
	if cf.HasEnv {
		t.Error("top-level function has an environment argument")
	}
	if len(cf.SpillRegs) != 0 {
		t.Errorf("SpillRegs = %v, want none", cf.SpillRegs)
	}
}

func TestClosureFrameShape(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: make
  params: [x]
  body:
  - def:
      name: add
      params: [y]
      body:
      - return: {binop: {op: "+", x: x, y: y}}
  - return: add
`)
	if cf.Frame == nil {
		t.Fatal("make has no frame despite a captured local")
	}
	if len(cf.Frame.Fields) != 1 || cf.Frame.Fields[0] != "x" {
		t.Errorf("frame fields = %v, want [x]", cf.Frame.Fields)
	}
	if cf.Frame.HasParent {
		t.Error("top-level frame has a parent link")
	}

	add := findClosure(t, cf, "add")
	if !add.HasEnv {
		t.Error("nested function has no environment argument")
	}
	if add.Frame == nil || !add.Frame.HasParent {
		t.Errorf("nested frame = %+v, want a parent-linked frame", add.Frame)
	}

	// The captured parameter is stored into the frame at entry.
	found := false
	for _, in := range cf.Blocks[0].Instrs {
		if s, ok := in.(*ir.StoreEnvOp); ok && s.Name == "x" && s.Hops == 0 {
			found = true
		}
	}
	if !found {
		t.Error("escaping parameter x is not promoted to the frame at entry")
	}
}

func TestCleanupDuplicatedPerExit(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: f
  params: [flag]
  global: [count]
  body:
  - try:
      body:
      - if: {cond: flag, then: [{return: 1}]}
      finally:
      - assign: {to: count, value: 0}
  - return: 0
`)
	// Exits: return, fall-through and the exception handler each run their
	// own copy of the cleanup.
	copies := 0
	var handlerCopies int
	for _, b := range cf.Blocks {
		for _, in := range b.Instrs {
			if s, ok := in.(*ir.StoreGlobalOp); ok && s.Name == "count" {
				copies++
				if b.Catch != ir.CatchNone {
					handlerCopies++
				}
			}
		}
	}
	if copies != 3 {
		t.Errorf("cleanup emitted %d times, want 3", copies)
	}
	if handlerCopies != 1 {
		t.Errorf("cleanup emitted %d times in handler blocks, want 1", handlerCopies)
	}
}

func TestYieldInCleanupGetsFreshStates(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: gen
  params: []
  body:
  - try:
      body:
      - expr: {yield: 1}
      - return: 2
      finally:
      - expr: {yield: 9}
`)
	// Two discovered points, but the cleanup yield is duplicated on the
	// return and exception paths; re-emissions must not reuse a state id.
	if cf.NumStates != 4 {
		t.Errorf("NumStates = %d, want 4", cf.NumStates)
	}
	seen := make(map[int]bool)
	for _, b := range cf.Blocks {
		if y, ok := b.Term().(*ir.YieldOp); ok {
			if seen[y.State] {
				t.Errorf("state id %d used by two yields", y.State)
			}
			seen[y.State] = true
		}
	}
}

func TestWithExitsOnAllPaths(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: f
  params: [mgr]
  body:
  - with:
      ctx: mgr
      as: res
      body:
      - return: res
`)
	enters, exits := 0, 0
	for _, b := range cf.Blocks {
		for _, in := range b.Instrs {
			switch in.(type) {
			case *ir.EnterWithOp:
				enters++
			case *ir.ExitWithOp:
				exits++
			}
		}
	}
	if enters != 1 {
		t.Errorf("%d EnterWith instructions, want 1", enters)
	}
	// One copy on the return path, one in the cleanup handler.
	if exits != 2 {
		t.Errorf("%d ExitWith instructions, want 2", exits)
	}
}

func TestHandlerKinds(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: f
  params: []
  body:
  - try:
      body:
      - try:
          body:
          - raise: {const: boom}
          except:
          - return: 1
      finally:
      - assign: {to: x, value: 0}
`)
	var except, cleanup int
	for _, b := range cf.Blocks {
		switch b.Catch {
		case ir.CatchExcept:
			except++
		case ir.CatchCleanup:
			cleanup++
		}
	}
	if except != 1 || cleanup != 1 {
		t.Errorf("handler blocks = %d except, %d cleanup; want 1 and 1", except, cleanup)
	}
}

func TestProtectedBodyStartsUnderHandler(t *testing.T) {
	cf := lowerFirst(t, `
name: test
funcs:
- name: f
  params: [mgr]
  body:
  - assign: {to: x, value: 1}
  - try:
      body:
      - raise: {const: boom}
      except:
      - return: 1
  - with:
      ctx: mgr
      body:
      - raise: {const: bang}
  - return: 0
`)
	// Every raise inside a protected body must sit in a block whose handler
	// is the region's handler, even when the body starts mid-block.
	raises := 0
	for _, b := range cf.Blocks {
		for _, in := range b.Instrs {
			if _, ok := in.(*ir.RaiseOp); !ok {
				continue
			}
			// Re-raises at the end of handler blocks are not protected.
			if b.Catch != ir.CatchNone {
				continue
			}
			raises++
			if b.Handler == ir.NoBlock {
				t.Errorf("raise in b%d has no handler", b.ID)
				continue
			}
			if k := cf.Blocks[b.Handler].Catch; k == ir.CatchNone {
				t.Errorf("raise in b%d unwinds to non-handler b%d", b.ID, b.Handler)
			}
		}
	}
	if raises != 2 {
		t.Fatalf("found %d protected raises, want 2", raises)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	src := ir.Source{Name: "lower_test", Code: `
name: test
funcs:
- name: f
  params: []
  body:
  - break
`}
	m, err := ir.ParseModule(&src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := lower.Module(m, src); err == nil {
		t.Error("break outside a loop lowered without error")
	}
}

func TestDiscoverAssignsStatesInOrder(t *testing.T) {
	src := ir.Source{Name: "lower_test", Code: `
name: test
funcs:
- name: gen
  params: []
  body:
  - expr: {yield: 1}
  - assign: {to: r, value: {from: sub}}
  - expr: {yield: r}
  - def:
      name: nested
      params: []
      body:
      - expr: {yield: 99}
`}
	m, err := ir.ParseModule(&src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	points := lower.Discover(m.Funcs[0])
	if len(points) != 3 {
		t.Fatalf("discovered %d points, want 3 (nested bodies excluded)", len(points))
	}
	for i, p := range points {
		if p.State != i+1 {
			t.Errorf("point %d has state %d, want %d", i, p.State, i+1)
		}
	}
	if points[0].Delegating || !points[1].Delegating || points[2].Delegating {
		t.Errorf("delegating flags = %v, want [false true false]",
			[]bool{points[0].Delegating, points[1].Delegating, points[2].Delegating})
	}
}

func findClosure(t *testing.T, cf *ir.CompiledFunc, name string) *ir.CompiledFunc {
	t.Helper()
	for _, b := range cf.Blocks {
		for _, in := range b.Instrs {
			if mc, ok := in.(*ir.MakeClosureOp); ok && mc.Fn.Name == name {
				return mc.Fn
			}
		}
	}
	t.Fatalf("no closure %q in %s", name, cf.Name)
	return nil
}
