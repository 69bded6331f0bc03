// Loomc lowers loom modules to flat register code and runs them. With -lsp it
// serves lowering diagnostics to editors over stdio instead.
package main

import (
	"os"

	"github.com/loomlang/loom/pkg/build"
	"github.com/loomlang/loom/pkg/lsp"
	"github.com/loomlang/loom/pkg/prog"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(&lsp.Program{}, &build.Program{})))
}
