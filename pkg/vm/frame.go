package vm

import "github.com/loomlang/loom/pkg/ir"

// Frame is the heap record holding a scope's escaping locals, one instance
// per invocation. Frames form a tree through the parent link, never a cycle,
// so plain reference counting in the target runtime suffices; here the Go
// garbage collector stands in for it.
type Frame struct {
	parent *Frame
	slots  map[string]any
}

// NewFrame allocates a frame with every field set to the undefined sentinel.
func NewFrame(info *ir.FrameInfo, parent *Frame) *Frame {
	slots := make(map[string]any, len(info.Fields))
	for _, f := range info.Fields {
		slots[f] = Unset
	}
	return &Frame{parent: parent, slots: slots}
}

// at walks hops parent links. The lowering only emits hop counts it has
// proven statically, so a nil result is an internal error.
func (f *Frame) at(hops int) *Frame {
	for ; hops > 0; hops-- {
		f = f.parent
	}
	return f
}

func (f *Frame) get(hops int, name string) (any, error) {
	v := f.at(hops).slots[name]
	if v == Unset {
		return nil, UnboundVarError{name}
	}
	return v, nil
}

func (f *Frame) set(hops int, name string, v any) {
	f.at(hops).slots[name] = v
}
