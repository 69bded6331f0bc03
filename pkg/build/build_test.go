package build_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loomlang/loom/pkg/build"
	"github.com/loomlang/loom/pkg/prog/progtest"
)

const helloSrc = `
name: hello
funcs:
- name: main
  params: []
  body:
  - expr: {call: {fn: print, args: [{const: hi}, 42]}}
`

const counterSrc = `
name: counter
funcs:
- name: main
  params: []
  body:
  - expr: {yield: 1}
  - expr: {yield: 2}
`

func writeModule(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.loom")
	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunModule(t *testing.T) {
	out := progtest.Run(t, &build.Program{}, writeModule(t, helloSrc))
	if out.Exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", out.Exit, out.Stderr)
	}
	if out.Stdout != "hi 42\n" {
		t.Errorf("stdout = %q, want %q", out.Stdout, "hi 42\n")
	}
}

func TestRunGenerator(t *testing.T) {
	out := progtest.Run(t, &build.Program{}, writeModule(t, counterSrc))
	if out.Exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", out.Exit, out.Stderr)
	}
	if out.Stdout != "1\n2\n" {
		t.Errorf("stdout = %q, want the yielded values", out.Stdout)
	}
}

func TestCompileOnly(t *testing.T) {
	out := progtest.Run(t, &build.Program{}, "-compileonly", writeModule(t, counterSrc))
	if out.Exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", out.Exit, out.Stderr)
	}
	if !strings.Contains(out.Stdout, "func main()") {
		t.Errorf("stdout = %q, want a function dump", out.Stdout)
	}
	if !strings.Contains(out.Stdout, "generator") {
		t.Errorf("stdout = %q, want generator attributes", out.Stdout)
	}
}

func TestCompileOnlyJSON(t *testing.T) {
	out := progtest.Run(t, &build.Program{},
		"-compileonly", "-json", writeModule(t, counterSrc))
	if out.Exit != 0 {
		t.Fatalf("exit = %d, stderr = %q", out.Exit, out.Stderr)
	}
	var summaries []struct {
		Name      string `json:"name"`
		Generator bool   `json:"generator"`
		States    int    `json:"states"`
	}
	if err := json.Unmarshal([]byte(out.Stdout), &summaries); err != nil {
		t.Fatalf("stdout %q is not JSON: %v", out.Stdout, err)
	}
	if len(summaries) != 1 || summaries[0].Name != "main" ||
		!summaries[0].Generator || summaries[0].States != 3 {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestCacheFlag(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lower.db")
	path := writeModule(t, helloSrc)
	for i := 0; i < 2; i++ {
		out := progtest.Run(t, &build.Program{}, "-db", db, path)
		if out.Exit != 0 {
			t.Fatalf("run %d: exit = %d, stderr = %q", i, out.Exit, out.Stderr)
		}
		if out.Stdout != "hi 42\n" {
			t.Errorf("run %d: stdout = %q", i, out.Stdout)
		}
	}
}

func TestParseErrorShown(t *testing.T) {
	out := progtest.Run(t, &build.Program{}, writeModule(t, "funcs: {broken"))
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, "arse error") {
		t.Errorf("stderr = %q, want a parse error header", out.Stderr)
	}
}

func TestNoArgs(t *testing.T) {
	out := progtest.Run(t, &build.Program{})
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, "Usage:") {
		t.Errorf("stderr = %q, want usage", out.Stderr)
	}
}
