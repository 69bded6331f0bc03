package ir

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loomlang/loom/pkg/diag"
)

// ParseError is the Type of Errors returned by ParseModule.
const ParseError = "parse error"

// ParseModule parses the textual form of a module. The text is a YAML
// document:
//
//	name: demo
//	funcs:
//	- name: counter
//	  params: [n]
//	  body:
//	  - assign: {to: i, value: 0}
//	  - while:
//	      cond: {binop: {op: "<", x: i, y: n}}
//	      body:
//	      - expr: {yield: i}
//	      - assign: {to: i, value: {binop: {op: +, x: i, y: 1}}}
//	  - return: n
//
// Statements and expressions are one-key mappings; a bare string scalar is a
// name reference and other scalars are constants. Errors carry the position
// of the offending node.
func ParseModule(src *Source) (*Module, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src.Code), &doc); err != nil {
		return nil, &diag.Error{
			Type:    ParseError,
			Message: err.Error(),
			Context: *diag.NewContext(src.Name, src.Code, diag.PointRanging(0)),
		}
	}
	p := &parser{src: src}
	p.indexLines()
	return p.parse(&doc)
}

type parser struct {
	src *Source
	// lineStart[i] is the byte offset of 1-based line i+1.
	lineStart []int
}

func (p *parser) indexLines() {
	p.lineStart = []int{0}
	for i, r := range p.src.Code {
		if r == '\n' {
			p.lineStart = append(p.lineStart, i+1)
		}
	}
}

// rangeOf converts a node's line/column position to a byte range.
func (p *parser) rangeOf(n *yaml.Node) diag.Ranging {
	line, col := n.Line, n.Column
	if line < 1 || line > len(p.lineStart) {
		return diag.PointRanging(len(p.src.Code))
	}
	from := p.lineStart[line-1] + col - 1
	if from > len(p.src.Code) {
		from = len(p.src.Code)
	}
	to := from
	if n.Kind == yaml.ScalarNode {
		to = from + len(n.Value)
	}
	if to > len(p.src.Code) {
		to = len(p.src.Code)
	}
	return diag.Ranging{From: from, To: to}
}

func (p *parser) errorf(n *yaml.Node, format string, args ...any) error {
	return &diag.Error{
		Type:    ParseError,
		Message: fmt.Sprintf(format, args...),
		Context: *diag.NewContext(p.src.Name, p.src.Code, p.rangeOf(n)),
	}
}

func (p *parser) parse(doc *yaml.Node) (*Module, error) {
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, p.errorf(root, "empty document")
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, p.errorf(root, "module must be a mapping")
	}
	m := &Module{}
	var funcsNode *yaml.Node
	err := p.eachPair(root, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			m.Name = val.Value
		case "funcs":
			funcsNode = val
		default:
			return p.errorf(val, "unknown module field %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if funcsNode == nil {
		return m, nil
	}
	if funcsNode.Kind != yaml.SequenceNode {
		return nil, p.errorf(funcsNode, "funcs must be a sequence")
	}
	for _, fn := range funcsNode.Content {
		f, err := p.parseFunc(fn)
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, f)
	}
	return m, nil
}

func (p *parser) parseFunc(n *yaml.Node) (*Func, error) {
	if n.Kind != yaml.MappingNode {
		return nil, p.errorf(n, "function must be a mapping")
	}
	f := &Func{Ranging: p.rangeOf(n)}
	err := p.eachPair(n, func(key string, val *yaml.Node) error {
		switch key {
		case "name":
			f.Name = val.Value
		case "params":
			return p.stringList(val, &f.Params)
		case "nonlocal":
			return p.stringList(val, &f.Nonlocal)
		case "global":
			return p.stringList(val, &f.Global)
		case "body":
			body, err := p.parseStmts(val)
			if err != nil {
				return err
			}
			f.Body = body
		default:
			return p.errorf(val, "unknown function field %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		return nil, p.errorf(n, "function has no name")
	}
	return f, nil
}

func (p *parser) parseStmts(n *yaml.Node) ([]Stmt, error) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, p.errorf(n, "statement list must be a sequence")
	}
	var stmts []Stmt
	for _, sn := range n.Content {
		s, err := p.parseStmt(sn)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) parseStmt(n *yaml.Node) (Stmt, error) {
	r := p.rangeOf(n)
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "break":
			return &Break{Ranging: r}, nil
		case "continue":
			return &Continue{Ranging: r}, nil
		case "return":
			return &Return{Ranging: r}, nil
		}
		return nil, p.errorf(n, "unknown statement %q", n.Value)
	}
	key, val, err := p.oneKey(n, "statement")
	if err != nil {
		return nil, err
	}
	switch key {
	case "assign":
		var to, value *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"to": &to, "value": &value,
		}))
		if err != nil {
			return nil, err
		}
		if to == nil || value == nil {
			return nil, p.errorf(val, "assign needs to and value")
		}
		v, err := p.parseExpr(value)
		if err != nil {
			return nil, err
		}
		return &Assign{
			Target: &NameTarget{Name: to.Value, Ranging: p.rangeOf(to)},
			Value:  v, Ranging: r,
		}, nil
	case "expr":
		x, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x, Ranging: r}, nil
	case "if":
		var cond, then, els *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"cond": &cond, "then": &then, "else": &els,
		}))
		if err != nil {
			return nil, err
		}
		if cond == nil || then == nil {
			return nil, p.errorf(val, "if needs cond and then")
		}
		c, err := p.parseExpr(cond)
		if err != nil {
			return nil, err
		}
		t, err := p.parseStmts(then)
		if err != nil {
			return nil, err
		}
		var e []Stmt
		if els != nil {
			e, err = p.parseStmts(els)
			if err != nil {
				return nil, err
			}
		}
		return &If{Cond: c, Then: t, Else: e, Ranging: r}, nil
	case "while":
		var cond, body *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"cond": &cond, "body": &body,
		}))
		if err != nil {
			return nil, err
		}
		if cond == nil || body == nil {
			return nil, p.errorf(val, "while needs cond and body")
		}
		c, err := p.parseExpr(cond)
		if err != nil {
			return nil, err
		}
		b, err := p.parseStmts(body)
		if err != nil {
			return nil, err
		}
		return &While{Cond: c, Body: b, Ranging: r}, nil
	case "return":
		if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
			return &Return{Ranging: r}, nil
		}
		v, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &Return{Value: v, Ranging: r}, nil
	case "raise":
		v, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &Raise{Value: v, Ranging: r}, nil
	case "try":
		var body, finally, except, as *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"body": &body, "finally": &finally, "except": &except, "as": &as,
		}))
		if err != nil {
			return nil, err
		}
		if body == nil {
			return nil, p.errorf(val, "try needs a body")
		}
		b, err := p.parseStmts(body)
		if err != nil {
			return nil, err
		}
		switch {
		case finally != nil && except == nil:
			fin, err := p.parseStmts(finally)
			if err != nil {
				return nil, err
			}
			return &TryFinally{Body: b, Finally: fin, Ranging: r}, nil
		case except != nil && finally == nil:
			h, err := p.parseStmts(except)
			if err != nil {
				return nil, err
			}
			name := ""
			if as != nil {
				name = as.Value
			}
			return &TryExcept{Body: b, Name: name, Handler: h, Ranging: r}, nil
		default:
			return nil, p.errorf(val, "try needs exactly one of finally and except")
		}
	case "with":
		var ctx, as, body *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"ctx": &ctx, "as": &as, "body": &body,
		}))
		if err != nil {
			return nil, err
		}
		if ctx == nil || body == nil {
			return nil, p.errorf(val, "with needs ctx and body")
		}
		c, err := p.parseExpr(ctx)
		if err != nil {
			return nil, err
		}
		b, err := p.parseStmts(body)
		if err != nil {
			return nil, err
		}
		name := ""
		if as != nil {
			name = as.Value
		}
		return &With{Ctx: c, Name: name, Body: b, Ranging: r}, nil
	case "def":
		f, err := p.parseFunc(val)
		if err != nil {
			return nil, err
		}
		return &FuncDef{Fn: f, Ranging: r}, nil
	default:
		return nil, p.errorf(n, "unknown statement %q", key)
	}
}

func (p *parser) parseExpr(n *yaml.Node) (Expr, error) {
	r := p.rangeOf(n)
	if n.Kind == yaml.ScalarNode {
		switch n.Tag {
		case "!!str":
			return &Name{Ident: n.Value, Ranging: r}, nil
		default:
			var v any
			if err := n.Decode(&v); err != nil {
				return nil, p.errorf(n, "bad literal: %v", err)
			}
			return &Const{Value: v, Ranging: r}, nil
		}
	}
	key, val, err := p.oneKey(n, "expression")
	if err != nil {
		return nil, err
	}
	switch key {
	case "const":
		var v any
		if err := val.Decode(&v); err != nil {
			return nil, p.errorf(val, "bad literal: %v", err)
		}
		return &Const{Value: v, Ranging: r}, nil
	case "name":
		return &Name{Ident: val.Value, Ranging: r}, nil
	case "binop":
		var op, x, y *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"op": &op, "x": &x, "y": &y,
		}))
		if err != nil {
			return nil, err
		}
		if op == nil || x == nil || y == nil {
			return nil, p.errorf(val, "binop needs op, x and y")
		}
		xe, err := p.parseExpr(x)
		if err != nil {
			return nil, err
		}
		ye, err := p.parseExpr(y)
		if err != nil {
			return nil, err
		}
		return &BinOp{Op: op.Value, X: xe, Y: ye, Ranging: r}, nil
	case "call":
		var fn, args *yaml.Node
		err := p.eachPair(val, fieldDispatch(p, val, map[string]**yaml.Node{
			"fn": &fn, "args": &args,
		}))
		if err != nil {
			return nil, err
		}
		if fn == nil {
			return nil, p.errorf(val, "call needs fn")
		}
		fe, err := p.parseExpr(fn)
		if err != nil {
			return nil, err
		}
		c := &Call{Fn: fe, Ranging: r}
		if args != nil {
			if args.Kind != yaml.SequenceNode {
				return nil, p.errorf(args, "args must be a sequence")
			}
			for _, an := range args.Content {
				ae, err := p.parseExpr(an)
				if err != nil {
					return nil, err
				}
				c.Args = append(c.Args, ae)
			}
		}
		return c, nil
	case "yield":
		if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
			return &Yield{Ranging: r}, nil
		}
		v, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &Yield{Value: v, Ranging: r}, nil
	case "from":
		x, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &YieldFrom{X: x, Ranging: r}, nil
	case "await":
		x, err := p.parseExpr(val)
		if err != nil {
			return nil, err
		}
		return &Await{X: x, Ranging: r}, nil
	default:
		return nil, p.errorf(n, "unknown expression %q", key)
	}
}

func (p *parser) oneKey(n *yaml.Node, what string) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, p.errorf(n, "%s must be a one-key mapping", what)
	}
	return n.Content[0].Value, n.Content[1], nil
}

func (p *parser) eachPair(n *yaml.Node, f func(key string, val *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return p.errorf(n, "expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := f(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) stringList(n *yaml.Node, dst *[]string) error {
	if n.Kind != yaml.SequenceNode {
		return p.errorf(n, "expected a sequence of names")
	}
	for _, c := range n.Content {
		*dst = append(*dst, c.Value)
	}
	return nil
}

// fieldDispatch builds an eachPair callback that stores known fields into the
// given slots and rejects the rest.
func fieldDispatch(p *parser, owner *yaml.Node, slots map[string]**yaml.Node) func(string, *yaml.Node) error {
	return func(key string, val *yaml.Node) error {
		slot, ok := slots[key]
		if !ok {
			known := make([]string, 0, len(slots))
			for k := range slots {
				known = append(known, k)
			}
			return p.errorf(val, "unknown field %q (known: %s)", key, strings.Join(known, ", "))
		}
		*slot = val
		return nil
	}
}
