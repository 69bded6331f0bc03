// Package progtest supports testing subprograms.
package progtest

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/loomlang/loom/pkg/prog"
)

// Output captures the observable behavior of one subprogram run.
type Output struct {
	Exit   int
	Stdout string
	Stderr string
}

// Run runs a subprogram with the given arguments (excluding the program
// name), capturing its output. Stdin is connected to an empty pipe.
func Run(t *testing.T, p prog.Program, args ...string) Output {
	t.Helper()
	return RunWithStdin(t, p, "", args...)
}

// RunWithStdin is Run with the given text supplied on stdin.
func RunWithStdin(t *testing.T, p prog.Program, stdin string, args ...string) Output {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	go func() {
		io.Copy(w, strings.NewReader(stdin))
		w.Close()
	}()
	stdout, stdoutDone := capture(t)
	stderr, stderrDone := capture(t)
	exit := prog.Run([3]*os.File{r, stdout, stderr},
		append([]string{"loomc"}, args...), p)
	stdout.Close()
	stderr.Close()
	return Output{Exit: exit, Stdout: <-stdoutDone, Stderr: <-stderrDone}
}

// capture returns a write end and a channel that delivers everything written
// to it once the write end is closed. Reading in a goroutine keeps a chatty
// subprogram from filling the pipe buffer and deadlocking.
func capture(t *testing.T) (*os.File, <-chan string) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(r)
		r.Close()
		done <- string(b)
	}()
	return w, done
}
