package cache_test

import (
	"path/filepath"
	"testing"

	"github.com/loomlang/loom/pkg/cache"
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/lower"
	"github.com/loomlang/loom/pkg/vm"
)

const genSrc = `
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
`

func open(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "lower.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func compile(t *testing.T, code string) (*ir.Source, *ir.CompiledModule) {
	t.Helper()
	src := &ir.Source{Name: "cache_test", Code: code}
	m, err := ir.ParseModule(src)
	if err != nil {
		t.Fatal(err)
	}
	cm, err := lower.Module(m, *src)
	if err != nil {
		t.Fatal(err)
	}
	return src, cm
}

func TestRoundTrip(t *testing.T) {
	c := open(t)
	src, cm := compile(t, genSrc)

	if _, ok, err := c.Get(src); err != nil || ok {
		t.Fatalf("Get before Put = hit %v, err %v; want a miss", ok, err)
	}
	if err := c.Put(src, cm); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(src)
	if err != nil || !ok {
		t.Fatalf("Get after Put = hit %v, err %v; want a hit", ok, err)
	}

	// The decoded module must still behave: run it.
	in := vm.NewInterp(got, nil)
	v, _ := in.Global("counter")
	r, err := v.(*vm.Closure).Call([]any{2})
	if err != nil {
		t.Fatal(err)
	}
	vals, ret, err := vm.Drain(r.(vm.Resumable))
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0] != 0 || vals[1] != 1 || ret != 2 {
		t.Errorf("decoded counter yielded %v with completion %v, want [0 1] and 2", vals, ret)
	}
}

func TestKeyedBySource(t *testing.T) {
	c := open(t)
	src, cm := compile(t, genSrc)
	if err := c.Put(src, cm); err != nil {
		t.Fatal(err)
	}
	other := &ir.Source{Name: src.Name, Code: src.Code + "\n# changed"}
	if _, ok, _ := c.Get(other); ok {
		t.Error("changed source hit the cache")
	}
	renamed := &ir.Source{Name: "other", Code: src.Code}
	if _, ok, _ := c.Get(renamed); ok {
		t.Error("renamed source hit the cache")
	}
}
