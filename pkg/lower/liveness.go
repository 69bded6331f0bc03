package lower

import "github.com/loomlang/loom/pkg/ir"

// regSet is a set of registers.
type regSet map[ir.Reg]bool

func (s regSet) add(r ir.Reg) bool {
	if r == ir.NoReg || s[r] {
		return false
	}
	s[r] = true
	return true
}

func (s regSet) union(t regSet) bool {
	changed := false
	for r := range t {
		if s.add(r) {
			changed = true
		}
	}
	return changed
}

// liveness computes, per block, the set of registers live on entry. An
// exception can leave a block from any instruction, so a block's handler
// contributes its live-in set to the block's own, conservatively.
func liveness(cf *ir.CompiledFunc) map[ir.BlockID]regSet {
	liveIn := make(map[ir.BlockID]regSet, len(cf.Blocks))
	for _, b := range cf.Blocks {
		liveIn[b.ID] = make(regSet)
	}
	for changed := true; changed; {
		changed = false
		for i := len(cf.Blocks) - 1; i >= 0; i-- {
			b := cf.Blocks[i]
			out := make(regSet)
			for _, succ := range successors(b) {
				out.union(liveIn[succ])
			}
			// Backward transfer through the block.
			for j := len(b.Instrs) - 1; j >= 0; j-- {
				in := b.Instrs[j]
				for _, d := range defs(in) {
					delete(out, d)
				}
				for _, u := range uses(in) {
					out.add(u)
				}
			}
			if b.Handler != ir.NoBlock {
				out.union(liveIn[b.Handler])
			}
			if liveIn[b.ID].union(out) {
				changed = true
			}
		}
	}
	return liveIn
}

func successors(b *ir.Block) []ir.BlockID {
	switch t := b.Term().(type) {
	case *ir.JumpOp:
		return []ir.BlockID{t.To}
	case *ir.BranchOp:
		return []ir.BlockID{t.Then, t.Else}
	case *ir.SwitchOp:
		out := append([]ir.BlockID(nil), t.Targets...)
		return append(out, t.Default)
	case *ir.YieldOp:
		return []ir.BlockID{t.Resume}
	case *ir.DelegateOp:
		return []ir.BlockID{t.Resume}
	}
	return nil
}

func uses(in ir.Instr) []ir.Reg {
	switch in := in.(type) {
	case *ir.MoveOp:
		return []ir.Reg{in.Src}
	case *ir.BinOpOp:
		return []ir.Reg{in.X, in.Y}
	case *ir.CallOp:
		return append([]ir.Reg{in.Fn}, in.Args...)
	case *ir.StoreEnvOp:
		return []ir.Reg{in.Src}
	case *ir.StoreGlobalOp:
		return []ir.Reg{in.Src}
	case *ir.EnterWithOp:
		return []ir.Reg{in.Mgr}
	case *ir.ExitWithOp:
		return []ir.Reg{in.Mgr}
	case *ir.SpillOp:
		return []ir.Reg{in.Src}
	case *ir.BranchOp:
		return []ir.Reg{in.Cond}
	case *ir.SwitchOp:
		return []ir.Reg{in.Src}
	case *ir.ReturnOp:
		if in.Val != ir.NoReg {
			return []ir.Reg{in.Val}
		}
	case *ir.RaiseOp:
		return []ir.Reg{in.Val}
	case *ir.YieldOp:
		return []ir.Reg{in.Val}
	case *ir.DelegateOp:
		return []ir.Reg{in.Sub}
	}
	return nil
}

func defs(in ir.Instr) []ir.Reg {
	switch in := in.(type) {
	case *ir.ConstOp:
		return []ir.Reg{in.Dst}
	case *ir.MoveOp:
		return []ir.Reg{in.Dst}
	case *ir.BinOpOp:
		return []ir.Reg{in.Dst}
	case *ir.CallOp:
		return []ir.Reg{in.Dst}
	case *ir.MakeClosureOp:
		return []ir.Reg{in.Dst}
	case *ir.LoadEnvOp:
		return []ir.Reg{in.Dst}
	case *ir.LoadGlobalOp:
		return []ir.Reg{in.Dst}
	case *ir.EnterWithOp:
		return []ir.Reg{in.Dst}
	case *ir.ReloadOp:
		return []ir.Reg{in.Dst}
	case *ir.LoadStateOp:
		return []ir.Reg{in.Dst}
	case *ir.TakeInputOp:
		return []ir.Reg{in.Dst}
	case *ir.CatchExcOp:
		return []ir.Reg{in.Dst}
	}
	return nil
}
