// Package opcodes defines the bytecode instruction set the VM (package
// vm) dispatches over, and the exception-table shape compiled functions
// carry. Generalized from the teacher's register-machine opcode set
// (Op1/Op2/Result operand triples over a PHP-shaped instruction set) to a
// stack-machine instruction set shaped for spec.md §4.3's VM, keeping the
// teacher's habit of grouping opcodes into commented, numbered bands by
// concern.
package opcodes

// Opcode identifies a single bytecode instruction.
type Opcode byte

// Stack and constant/local load-store (0-19).
const (
	OpNop Opcode = iota
	OpLoadConst
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadCell
	OpStoreCell
	OpLoadClosureCell // load a free variable from the enclosing closure's cells
	OpPop
	OpDup
	OpRot2
	OpLoadUndefinedCheck // raises UnboundLocalError/NameError on Undefined
)

// Arithmetic / comparison / boolean (20-49), delegating to
// heap.Heap's PyTrait-equivalent dispatch for Ref operands.
const (
	OpAdd Opcode = iota + 20
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpNeg
	OpPos
	OpNot
	OpInvert

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIs
	OpIsNot
	OpIn
	OpNotIn

	OpBoolAnd
	OpBoolOr
)

// Container building / unpacking / subscript (50-69).
const (
	OpBuildList Opcode = iota + 50
	OpBuildTuple
	OpBuildSet
	OpBuildDict
	OpListAppend
	OpDictSetItem
	OpUnpackSequence // pops a sequence, pushes N values (errors if size mismatch)
	OpBinarySubscr   // a[b]
	OpStoreSubscr    // a[b] = c
	OpDeleteSubscr   // del a[b]
)

// Attribute access (70-79).
const (
	OpLoadAttr Opcode = iota + 70
	OpStoreAttr
	OpDeleteAttr
	OpLoadMethod // fetch a bound-method-shaped callable for a fast CallMethod
)

// Call shapes (80-99).
const (
	OpCall Opcode = iota + 80
	OpCallKw
	OpCallMethod
	OpMakeFunction // builds a Closure heap object from a FunctionId + captured cells + defaults
	OpReturnValue
)

// Control flow (100-119).
const (
	OpJump Opcode = iota + 100
	OpJumpIfFalse
	OpJumpIfTrue
	OpJumpIfFalseOrPop
	OpJumpIfTrueOrPop
	OpForIter // drives __next__, jumps past the loop on StopIteration/pending_for_iter_jump
	OpGetIter
)

// Exception control (120-129). OpPushExceptHandler/OpPopExceptHandler
// bracket a compiled except-handler body (the first/last instruction a
// handler's PC range covers): Push claims the exception raise() just
// dispatched into the handler as the active __context__ source, saving
// whatever was active before; Pop restores it, so nested try/except
// blocks chain __context__ correctly. OpSetupFinally pushes a None
// sentinel before the non-exceptional path falls into a finally body;
// OpEndFinally pops that sentinel and re-raises the in-flight exception
// only if it wasn't None (the exceptional path instead finds the real
// exception value there, pushed by the same handler-dispatch raise()
// uses for except).
const (
	OpPushExceptHandler Opcode = iota + 120
	OpPopExceptHandler
	OpRaise
	OpRaiseFrom // raise X from Y: pops Y (cause) then X
	OpReraise
	OpEndFinally
	OpSetupFinally
)

// Generator / coroutine control (130-139).
const (
	OpYield Opcode = iota + 130
	OpYieldFrom
	OpAwait
	OpGetAwaitable
)

// Class machinery (140-149).
const (
	OpBuildClass Opcode = iota + 140
	OpLoadBuildClass
)

// Instruction is a single bytecode step. Arg's meaning is opcode
// dependent: a constant-pool index, a locals-slot index, a jump target,
// an argument count, or unused (0).
type Instruction struct {
	Op   Opcode
	Arg  int32
	Arg2 int32 // used by call shapes (positional count / keyword count) and BuildClass
	Line int   // source line for traceback formatting (spec.md §7)
}

// ExceptionTableEntry is one row of a compiled function's exception table
// (spec.md §4.3): the instruction range it covers, the handler to jump
// to, and the operand-stack depth to unwind to before jumping.
type ExceptionTableEntry struct {
	StartPC    int
	EndPC      int
	HandlerPC  int
	StackDepth int
}

// FindHandler walks entries for the first one covering ip, matching
// spec.md §4.3 step 4's linear scan (exception tables are small in
// practice; CPython itself does a linear scan too).
func FindHandler(entries []ExceptionTableEntry, ip int) (ExceptionTableEntry, bool) {
	for _, e := range entries {
		if ip >= e.StartPC && ip < e.EndPC {
			return e, true
		}
	}
	return ExceptionTableEntry{}, false
}

// CostCategory classifies an opcode for resource-tracker charging
// (package tracker). Spec.md §9 leaves the exact per-opcode cost
// function open; this classification is the stable part implementations
// are expected to keep.
func (op Opcode) CostCategory() string {
	switch {
	case op >= OpAdd && op <= OpBoolOr:
		return "arithmetic"
	case op >= OpBuildList && op <= OpDeleteSubscr:
		return "alloc"
	case op >= OpCall && op <= OpReturnValue:
		return "call"
	case op >= OpJump && op <= OpGetIter:
		return "branch"
	case op >= OpLoadAttr && op <= OpLoadMethod:
		return "attr"
	default:
		return "default"
	}
}
