package lower

import (
	"github.com/loomlang/loom/pkg/ir"
	"github.com/loomlang/loom/pkg/scope"
)

// buildFrameInfo synthesizes the frame type for a scope, or returns nil when
// the scope needs none. The fields are exactly the escaping locals; a parent
// link is added when the scope or a descendant reaching through it accesses
// an enclosing frame.
func buildFrameInfo(sc *scope.Scope) *ir.FrameInfo {
	fields := sc.EscapingLocals()
	if len(fields) == 0 && !sc.RefsAncestor {
		return nil
	}
	return &ir.FrameInfo{Fields: fields, HasParent: sc.RefsAncestor}
}
