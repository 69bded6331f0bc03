package prog_test

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/loomlang/loom/pkg/prog"
	"github.com/loomlang/loom/pkg/prog/progtest"
)

type testProgram struct {
	name string
	next bool
	err  error
	flag string
}

func (p *testProgram) RegisterFlags(fs *prog.FlagSet) {
	if p.flag != "" {
		fs.String(p.flag, "", "a test flag")
	}
}

func (p *testProgram) Run(fds [3]*os.File, args []string) error {
	if p.next {
		return prog.ErrNextProgram
	}
	fmt.Fprintln(fds[1], p.name, args)
	return p.err
}

func TestRun(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p"}, "a", "b")
	if out.Exit != 0 {
		t.Errorf("exit = %d, want 0", out.Exit)
	}
	if !strings.Contains(out.Stdout, "p [a b]") {
		t.Errorf("stdout = %q, want program output with args", out.Stdout)
	}
}

func TestRun_BadFlag(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p"}, "-bad-flag")
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, "Usage:") {
		t.Errorf("stderr = %q, want usage", out.Stderr)
	}
}

func TestRun_Help(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p"}, "-help")
	if out.Exit != 0 {
		t.Errorf("exit = %d, want 0", out.Exit)
	}
	if !strings.Contains(out.Stdout, "Usage:") {
		t.Errorf("stdout = %q, want usage", out.Stdout)
	}
}

func TestRun_BadUsage(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p", err: prog.BadUsage("need more")})
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, "need more") || !strings.Contains(out.Stderr, "Usage:") {
		t.Errorf("stderr = %q, want message and usage", out.Stderr)
	}
}

func TestRun_ExitCode(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p", err: prog.Exit(3)})
	if out.Exit != 3 {
		t.Errorf("exit = %d, want 3", out.Exit)
	}
	if out.Stderr != "" {
		t.Errorf("stderr = %q, want empty", out.Stderr)
	}
}

func TestRun_ExitZero(t *testing.T) {
	if prog.Exit(0) != nil {
		t.Error("Exit(0) is not nil")
	}
}

func TestRun_PlainError(t *testing.T) {
	out := progtest.Run(t, &testProgram{name: "p", err: errors.New("boom")})
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, "boom") {
		t.Errorf("stderr = %q, want boom", out.Stderr)
	}
}

func TestComposite(t *testing.T) {
	out := progtest.Run(t, prog.Composite(
		&testProgram{name: "first", next: true, flag: "first-flag"},
		&testProgram{name: "second"},
	))
	if !strings.Contains(out.Stdout, "second") {
		t.Errorf("stdout = %q, want the second program to run", out.Stdout)
	}
	// Flags of skipped programs are still registered.
	out = progtest.Run(t, prog.Composite(
		&testProgram{name: "first", next: true, flag: "first-flag"},
		&testProgram{name: "second"},
	), "-first-flag", "x")
	if out.Exit != 0 {
		t.Errorf("exit = %d, want 0 with a registered flag", out.Exit)
	}
}

func TestComposite_AllDecline(t *testing.T) {
	out := progtest.Run(t, prog.Composite(
		&testProgram{next: true}, &testProgram{next: true},
	))
	if out.Exit != 2 {
		t.Errorf("exit = %d, want 2 when every program declines", out.Exit)
	}
}
