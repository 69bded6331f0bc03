package ir

import (
	"fmt"
	"strings"
)

// String renders the compiled function in a readable assembly-like form.
func (f *CompiledFunc) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(%s)", f.Name, strings.Join(f.Params, ", "))
	var attrs []string
	if f.HasEnv {
		attrs = append(attrs, "env")
	}
	if f.Frame != nil {
		attrs = append(attrs, "frame{"+strings.Join(f.Frame.Fields, ", ")+"}")
	}
	if f.Generator {
		attrs = append(attrs, fmt.Sprintf("generator states=%d spills=%d",
			f.NumStates, len(f.SpillRegs)))
	}
	if len(attrs) > 0 {
		sb.WriteString(" [" + strings.Join(attrs, " ") + "]")
	}
	fmt.Fprintf(&sb, " entry=b%d\n", f.Entry)
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "b%d:", b.ID)
		if b.Handler != NoBlock {
			fmt.Fprintf(&sb, " ; handler=b%d", b.Handler)
		}
		sb.WriteString("\n")
		for _, in := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", f.instrString(in))
		}
	}
	return sb.String()
}

func (f *CompiledFunc) regString(r Reg) string {
	if r == NoReg {
		return "_"
	}
	if name := f.RegNames[r]; name != "" {
		return fmt.Sprintf("%%%s", name)
	}
	return fmt.Sprintf("%%t%d", r)
}

func (f *CompiledFunc) instrString(in Instr) string {
	r := f.regString
	switch in := in.(type) {
	case *ConstOp:
		return fmt.Sprintf("%s = const %#v", r(in.Dst), in.Val)
	case *MoveOp:
		return fmt.Sprintf("%s = %s", r(in.Dst), r(in.Src))
	case *BinOpOp:
		return fmt.Sprintf("%s = %s %s %s", r(in.Dst), r(in.X), in.Op, r(in.Y))
	case *CallOp:
		args := make([]string, len(in.Args))
		for i, a := range in.Args {
			args[i] = r(a)
		}
		return fmt.Sprintf("%s = call %s(%s)", r(in.Dst), r(in.Fn), strings.Join(args, ", "))
	case *MakeClosureOp:
		return fmt.Sprintf("%s = closure %s", r(in.Dst), in.Fn.Name)
	case *AllocFrameOp:
		return "allocframe"
	case *LoadEnvOp:
		return fmt.Sprintf("%s = env^%d.%s", r(in.Dst), in.Hops, in.Name)
	case *StoreEnvOp:
		return fmt.Sprintf("env^%d.%s = %s", in.Hops, in.Name, r(in.Src))
	case *LoadGlobalOp:
		return fmt.Sprintf("%s = global %s", r(in.Dst), in.Name)
	case *StoreGlobalOp:
		return fmt.Sprintf("global %s = %s", in.Name, r(in.Src))
	case *EnterWithOp:
		return fmt.Sprintf("%s = enter %s", r(in.Dst), r(in.Mgr))
	case *ExitWithOp:
		return fmt.Sprintf("exit %s", r(in.Mgr))
	case *SpillOp:
		return fmt.Sprintf("spill[%d] = %s", in.Slot, r(in.Src))
	case *ReloadOp:
		return fmt.Sprintf("%s = spill[%d]", r(in.Dst), in.Slot)
	case *LoadStateOp:
		return fmt.Sprintf("%s = state", r(in.Dst))
	case *TakeInputOp:
		return fmt.Sprintf("%s = input", r(in.Dst))
	case *CatchExcOp:
		return fmt.Sprintf("%s = exc", r(in.Dst))
	case *ClearExcOp:
		return "clearexc"
	case *JumpOp:
		return fmt.Sprintf("jump b%d", in.To)
	case *BranchOp:
		return fmt.Sprintf("branch %s b%d b%d", r(in.Cond), in.Then, in.Else)
	case *SwitchOp:
		targets := make([]string, len(in.Targets))
		for i, t := range in.Targets {
			targets[i] = fmt.Sprintf("b%d", t)
		}
		return fmt.Sprintf("switch %s [%s] else b%d", r(in.Src), strings.Join(targets, " "), in.Default)
	case *ReturnOp:
		return fmt.Sprintf("return %s", r(in.Val))
	case *RaiseOp:
		return fmt.Sprintf("raise %s", r(in.Val))
	case *YieldOp:
		return fmt.Sprintf("yield %s state=%d resume=b%d", r(in.Val), in.State, in.Resume)
	case *DelegateOp:
		return fmt.Sprintf("delegate %s state=%d resume=b%d", r(in.Sub), in.State, in.Resume)
	}
	return fmt.Sprintf("?%T", in)
}
