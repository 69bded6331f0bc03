package lower

import (
	"sort"

	"github.com/loomlang/loom/pkg/ir"
)

// transform rewrites a flattened generator body into dispatch-and-resume
// form: registers live across a suspension point are stored into state
// record slots before the suspension and reloaded on resume, and a dispatch
// block switches on the stored state id to re-enter the CFG at the right
// point. Non-generator functions are left untouched.
func transform(cf *ir.CompiledFunc) {
	if !cf.Generator {
		return
	}
	liveIn := liveness(cf)

	slots := make(map[ir.Reg]int)
	slotOf := func(r ir.Reg) int {
		if s, ok := slots[r]; ok {
			return s
		}
		s := len(slots)
		slots[r] = s
		cf.SpillRegs = append(cf.SpillRegs, r)
		return s
	}

	resumes := make([]ir.BlockID, cf.NumStates)
	resumes[0] = cf.Entry
	for _, b := range cf.Blocks {
		var state int
		var resume ir.BlockID
		switch t := b.Term().(type) {
		case *ir.YieldOp:
			state, resume = t.State, t.Resume
		case *ir.DelegateOp:
			state, resume = t.State, t.Resume
		default:
			continue
		}
		resumes[state] = resume

		live := sortedRegs(liveIn[resume])
		// Store live registers before suspending. Registers that are still
		// undefined here spill the undefined sentinel, so a later read
		// faults instead of seeing stale data.
		saves := make([]ir.Instr, 0, len(live))
		for _, r := range live {
			saves = append(saves, &ir.SpillOp{Slot: slotOf(r), Src: r})
		}
		term := b.Instrs[len(b.Instrs)-1]
		b.Instrs = append(b.Instrs[:len(b.Instrs)-1], append(saves, term)...)

		// Reload them before the resume block's own code.
		rb := cf.Blocks[resume]
		reloads := make([]ir.Instr, 0, len(live))
		for _, r := range live {
			reloads = append(reloads, &ir.ReloadOp{Dst: r, Slot: slots[r]})
		}
		rb.Instrs = append(reloads, rb.Instrs...)
	}

	// The dispatch block re-enters the CFG at the stored state id. The
	// machine rejects terminal states before ever entering, so the default
	// target is unreachable.
	d := cf.NewBlock(ir.NoBlock)
	st := cf.NewReg()
	d.Instrs = []ir.Instr{
		&ir.LoadStateOp{Dst: st},
		&ir.SwitchOp{Src: st, Targets: resumes, Default: resumes[0]},
	}
	cf.Entry = d.ID
}

func sortedRegs(s regSet) []ir.Reg {
	out := make([]ir.Reg, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
