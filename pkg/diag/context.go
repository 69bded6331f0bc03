// Package diag contains building blocks for diagnostics that point back into
// source code, shared by every stage of the lowering pipeline.
package diag

import (
	"fmt"
	"strings"
)

// Context is a range of text in a piece of source code, along with the name
// of the source. It is used by errors that can be attributed to a part of the
// source, like capture errors and traceback entries.
type Context struct {
	Name   string
	Source string
	Ranging
}

// NewContext creates a new Context.
func NewContext(name, source string, r Ranger) *Context {
	return &Context{name, source, r.Range()}
}

// Position describes a 0-based line and column, the form expected by editor
// protocols.
type Position struct {
	Line int
	Col  int
}

// PositionOf converts a byte offset in source to a Position.
func PositionOf(source string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	before := source[:offset]
	line := strings.Count(before, "\n")
	col := offset - (strings.LastIndexByte(before, '\n') + 1)
	return Position{line, col}
}

// Show shows the context: the name and line range of the culprit, followed by
// the culprit itself, underlined when the terminal permits.
func (c *Context) Show(indent string) string {
	if c.From < 0 || c.To > len(c.Source) || c.From > c.To {
		return fmt.Sprintf("%s, invalid position %d-%d", c.Name, c.From, c.To)
	}
	begin := PositionOf(c.Source, c.From)
	end := PositionOf(c.Source, c.To)

	var lineDesc string
	if begin.Line == end.Line {
		lineDesc = fmt.Sprintf("line %d", begin.Line+1)
	} else {
		lineDesc = fmt.Sprintf("line %d-%d", begin.Line+1, end.Line+1)
	}

	culprit := c.Source[c.From:c.To]
	culprit = strings.TrimSuffix(culprit, "\n")
	if culprit == "" {
		culprit = "^"
	}
	lines := strings.Split(culprit, "\n")
	for i, line := range lines {
		lines[i] = culpritBegin + line + culpritEnd
	}
	return c.Name + ", " + lineDesc + ":\n" +
		indent + "  " + strings.Join(lines, "\n"+indent+"  ")
}

// Variables controlling the style of the culprit. Overridden in tests.
var (
	culpritBegin = "\033[1;4m"
	culpritEnd   = "\033[m"
)
