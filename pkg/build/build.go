// Package build implements the batch compiler subprogram: it reads module
// files, lowers them, and optionally executes or dumps the result.
package build

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/loomlang/loom/pkg/cache"
	"github.com/loomlang/loom/pkg/diag"
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/lower"
	"github.com/loomlang/loom/pkg/prog"
	"github.com/loomlang/loom/pkg/vm"
)

// Program is the compiler subprogram. It runs last in the composite, so it
// accepts any invocation.
type Program struct {
	compileOnly bool
	run         string
	json        *bool
	db          *string
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	fs.BoolVar(&p.compileOnly, "compileonly", false,
		"Lower the modules but do not execute them")
	fs.StringVar(&p.run, "run", "main",
		"Name of the function to execute")
	p.json = fs.JSON()
	p.db = fs.DB()
}

func (p *Program) Run(fds [3]*os.File, args []string) error {
	if len(args) == 0 {
		return prog.BadUsage("need module files")
	}
	var c *cache.Cache
	if *p.db != "" {
		var err error
		c, err = cache.Open(*p.db)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer c.Close()
	}
	for _, path := range args {
		if err := p.one(fds, c, path); err != nil {
			if shower, ok := err.(diag.Shower); ok {
				fmt.Fprintln(fds[2], shower.Show(""))
				return prog.Exit(2)
			}
			return err
		}
	}
	return nil
}

func (p *Program) one(fds [3]*os.File, c *cache.Cache, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	src := &ir.Source{Name: path, Code: string(code)}
	cm, err := p.compile(c, src)
	if err != nil {
		return err
	}
	if p.compileOnly {
		return p.dump(fds[1], cm)
	}
	return p.execute(fds, cm)
}

func (p *Program) compile(c *cache.Cache, src *ir.Source) (*ir.CompiledModule, error) {
	if c != nil {
		if cm, ok, err := c.Get(src); err != nil {
			return nil, err
		} else if ok {
			log.Debug("cache hit", "source", src.Name)
			return cm, nil
		}
	}
	m, err := ir.ParseModule(src)
	if err != nil {
		return nil, err
	}
	cm, err := lower.Module(m, *src)
	if err != nil {
		return nil, err
	}
	if c != nil {
		if err := c.Put(src, cm); err != nil {
			return nil, err
		}
	}
	return cm, nil
}

// funcSummary is the JSON shape of one lowered function under -compileonly
// -json.
type funcSummary struct {
	Name      string   `json:"name"`
	Params    []string `json:"params"`
	Blocks    int      `json:"blocks"`
	Generator bool     `json:"generator"`
	States    int      `json:"states,omitempty"`
	Spills    int      `json:"spills,omitempty"`
}

func (p *Program) dump(out io.Writer, cm *ir.CompiledModule) error {
	if !*p.json {
		for _, f := range cm.Funcs {
			fmt.Fprint(out, f.String())
		}
		return nil
	}
	summaries := make([]funcSummary, len(cm.Funcs))
	for i, f := range cm.Funcs {
		summaries[i] = funcSummary{
			Name: f.Name, Params: f.Params, Blocks: len(f.Blocks),
			Generator: f.Generator, States: f.NumStates, Spills: len(f.SpillRegs),
		}
	}
	enc := json.NewEncoder(out)
	return enc.Encode(summaries)
}

// execute runs the entry function with no arguments. A resumable result is
// drained, printing each yielded value; any other result is printed directly.
func (p *Program) execute(fds [3]*os.File, cm *ir.CompiledModule) error {
	in := vm.NewInterp(cm, builtins(fds[1]))
	entry, ok := in.Global(p.run)
	if !ok {
		return fmt.Errorf("no function named %s", p.run)
	}
	cl, ok := entry.(*vm.Closure)
	if !ok {
		return fmt.Errorf("%s is not a function", p.run)
	}
	v, err := cl.Call(nil)
	if err != nil {
		return err
	}
	if r, ok := v.(vm.Resumable); ok {
		vals, ret, err := vm.Drain(r)
		for _, v := range vals {
			fmt.Fprintln(fds[1], v)
		}
		if err != nil {
			return err
		}
		if ret != nil {
			fmt.Fprintln(fds[1], ret)
		}
		return nil
	}
	if v != nil {
		fmt.Fprintln(fds[1], v)
	}
	return nil
}

func builtins(out io.Writer) map[string]any {
	return map[string]any{
		"print": vm.GoFn(func(args []any) (any, error) {
			for i, a := range args {
				if i > 0 {
					fmt.Fprint(out, " ")
				}
				fmt.Fprint(out, a)
			}
			fmt.Fprintln(out)
			return nil, nil
		}),
	}
}
