package ir

import "github.com/loomlang/loom/pkg/diag"

// Reg identifies a virtual register of a compiled function. Registers hold
// locals and temporaries alike; named locals keep their name in RegNames.
type Reg int

// NoReg marks an absent register operand.
const NoReg Reg = -1

// BlockID identifies a basic block within a compiled function.
type BlockID int

// NoBlock marks an absent block reference.
const NoBlock BlockID = -1

// CatchKind says what kinds of unwinding a handler block intercepts.
type CatchKind int

const (
	// CatchNone marks a block that is not a handler.
	CatchNone CatchKind = iota
	// CatchExcept marks an except handler. It does not intercept the close
	// signal, which only cleanup handlers may observe.
	CatchExcept
	// CatchCleanup marks a finally or with handler, which intercepts every
	// kind of unwinding including close.
	CatchCleanup
)

// FrameInfo describes the heap frame synthesized for a function whose locals
// escape into nested functions, or which needs a path to such a frame.
type FrameInfo struct {
	// Fields holds the escaping locals, in declaration order.
	Fields []string
	// HasParent reports whether the frame links to the frame of the
	// lexically enclosing invocation.
	HasParent bool
}

// CompiledModule is the output of lowering a Module.
type CompiledModule struct {
	Name  string
	Funcs []*CompiledFunc
}

// CompiledFunc is a function lowered to a flat register CFG.
type CompiledFunc struct {
	Name   string
	Params []string
	// NumRegs is the total number of registers. Parameters occupy registers
	// 0..len(Params)-1.
	NumRegs int
	// RegNames maps registers to local names, "" for temporaries.
	RegNames []string
	Blocks   []*Block
	// Entry is the block execution starts at. For generators this is the
	// dispatch block; otherwise it is block 0.
	Entry BlockID
	// Frame is non-nil if the function allocates a heap frame on entry.
	Frame *FrameInfo
	// HasEnv reports whether the function receives the frame of its defining
	// invocation as an implicit argument. False for top-level functions.
	HasEnv bool
	// Generator reports whether calling the function allocates a resumable
	// machine instead of running the body.
	Generator bool
	// NumStates is the number of resume states including state 0 (entry).
	NumStates int
	// SpillRegs lists the registers that live in the persistent state record;
	// the slot index of SpillRegs[i] is i.
	SpillRegs []Reg
	diag.Ranging
}

// NewReg allocates a fresh temporary register.
func (f *CompiledFunc) NewReg() Reg {
	f.RegNames = append(f.RegNames, "")
	f.NumRegs++
	return Reg(f.NumRegs - 1)
}

// NewNamedReg allocates a register for a named local.
func (f *CompiledFunc) NewNamedReg(name string) Reg {
	f.RegNames = append(f.RegNames, name)
	f.NumRegs++
	return Reg(f.NumRegs - 1)
}

// NewBlock appends an empty block with the given handler and returns it.
func (f *CompiledFunc) NewBlock(handler BlockID) *Block {
	b := &Block{ID: BlockID(len(f.Blocks)), Handler: handler}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block is a basic block: straight-line instructions ending in a terminator.
type Block struct {
	ID BlockID
	// Handler is the block unwinding transfers to when an exception is
	// raised here, NoBlock if the exception leaves the function.
	Handler BlockID
	// Catch describes this block's role as a handler.
	Catch  CatchKind
	Instrs []Instr
}

// Term returns the block's terminator.
func (b *Block) Term() Instr {
	return b.Instrs[len(b.Instrs)-1]
}

// Instr is a single instruction.
type Instr interface {
	diag.Ranger
	isInstr()
}

// ConstOp loads a constant into a register.
type ConstOp struct {
	Dst Reg
	Val any
	diag.Ranging
}

// MoveOp copies a register.
type MoveOp struct {
	Dst, Src Reg
	diag.Ranging
}

// BinOpOp applies a binary operator to two registers.
type BinOpOp struct {
	Dst  Reg
	Op   string
	X, Y Reg
	diag.Ranging
}

// CallOp calls the value in Fn with the argument registers.
type CallOp struct {
	Dst  Reg
	Fn   Reg
	Args []Reg
	diag.Ranging
}

// MakeClosureOp materializes a closure value: the given code paired with the
// frame current at this point.
type MakeClosureOp struct {
	Dst Reg
	Fn  *CompiledFunc
	diag.Ranging
}

// AllocFrameOp allocates the function's frame, linking it to the implicit
// environment argument. Emitted once, at function entry.
type AllocFrameOp struct {
	diag.Ranging
}

// LoadEnvOp reads a frame field reached through Hops parent links.
type LoadEnvOp struct {
	Dst  Reg
	Hops int
	Name string
	diag.Ranging
}

// StoreEnvOp writes a frame field reached through Hops parent links.
type StoreEnvOp struct {
	Hops int
	Name string
	Src  Reg
	diag.Ranging
}

// LoadGlobalOp reads a module-level name.
type LoadGlobalOp struct {
	Dst  Reg
	Name string
	diag.Ranging
}

// StoreGlobalOp writes a module-level name.
type StoreGlobalOp struct {
	Name string
	Src  Reg
	diag.Ranging
}

// EnterWithOp enters a context manager, producing the resource value.
type EnterWithOp struct {
	Dst Reg
	Mgr Reg
	diag.Ranging
}

// ExitWithOp exits a context manager.
type ExitWithOp struct {
	Mgr Reg
	diag.Ranging
}

// SpillOp stores a register into a slot of the state record. The value may be
// the undefined sentinel; SpillOp copies it verbatim.
type SpillOp struct {
	Slot int
	Src  Reg
	diag.Ranging
}

// ReloadOp loads a state record slot into a register, verbatim.
type ReloadOp struct {
	Dst  Reg
	Slot int
	diag.Ranging
}

// LoadStateOp loads the machine's resume state id.
type LoadStateOp struct {
	Dst Reg
	diag.Ranging
}

// TakeInputOp consumes the value the driver resumed with, or re-raises the
// exception it injected.
type TakeInputOp struct {
	Dst Reg
	diag.Ranging
}

// CatchExcOp moves the in-flight exception into a register. It is the first
// instruction of every handler block.
type CatchExcOp struct {
	Dst Reg
	diag.Ranging
}

// ClearExcOp ends the in-flight exception when an except handler completes
// normally, so later raises in the same run do not chain to it.
type ClearExcOp struct {
	diag.Ranging
}

// Terminators.

// JumpOp jumps unconditionally.
type JumpOp struct {
	To BlockID
	diag.Ranging
}

// BranchOp jumps on the truthiness of a register.
type BranchOp struct {
	Cond       Reg
	Then, Else BlockID
	diag.Ranging
}

// SwitchOp jumps to Targets[Src], or Default when out of range.
type SwitchOp struct {
	Src     Reg
	Targets []BlockID
	Default BlockID
	diag.Ranging
}

// ReturnOp returns from the function. For generators this is the completion
// path: the machine becomes Completed carrying the value.
type ReturnOp struct {
	Val Reg
	diag.Ranging
}

// RaiseOp raises the exception value in Val.
type RaiseOp struct {
	Val Reg
	diag.Ranging
}

// YieldOp suspends the machine producing Val, recording State as the resume
// state. Execution resumes at Resume.
type YieldOp struct {
	Val    Reg
	State  int
	Resume BlockID
	diag.Ranging
}

// DelegateOp suspends the machine delegating to the resumable object in Sub.
// Execution resumes at Resume once the sub-machine completes.
type DelegateOp struct {
	Sub    Reg
	State  int
	Resume BlockID
	diag.Ranging
}

func (*ConstOp) isInstr()       {}
func (*MoveOp) isInstr()        {}
func (*BinOpOp) isInstr()       {}
func (*CallOp) isInstr()        {}
func (*MakeClosureOp) isInstr() {}
func (*AllocFrameOp) isInstr()  {}
func (*LoadEnvOp) isInstr()     {}
func (*StoreEnvOp) isInstr()    {}
func (*LoadGlobalOp) isInstr()  {}
func (*StoreGlobalOp) isInstr() {}
func (*EnterWithOp) isInstr()   {}
func (*ExitWithOp) isInstr()    {}
func (*SpillOp) isInstr()       {}
func (*ReloadOp) isInstr()      {}
func (*LoadStateOp) isInstr()   {}
func (*TakeInputOp) isInstr()   {}
func (*CatchExcOp) isInstr()    {}
func (*ClearExcOp) isInstr()    {}
func (*JumpOp) isInstr()        {}
func (*BranchOp) isInstr()      {}
func (*SwitchOp) isInstr()      {}
func (*ReturnOp) isInstr()      {}
func (*RaiseOp) isInstr()       {}
func (*YieldOp) isInstr()       {}
func (*DelegateOp) isInstr()    {}

// IsTerminator reports whether the instruction ends a block.
func IsTerminator(i Instr) bool {
	switch i.(type) {
	case *JumpOp, *BranchOp, *SwitchOp, *ReturnOp, *RaiseOp, *YieldOp, *DelegateOp:
		return true
	}
	return false
}
