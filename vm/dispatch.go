// dispatch.go implements the Interpreter's opcode stepping loop —
// spec.md §4.3's core VM cycle over the teacher's linear opcode switch
// idiom (vm.VirtualMachine.execute), generalized from the register
// machine's Op1/Op2/Result operand triples to opcodes' stack-machine
// shape.
package vm

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// StopReason discriminates why Step stopped running instructions.
type StopReason byte

const (
	StopNone      StopReason = iota // keep calling Step
	StopCompleted                   // the root frame returned; Result holds the value
	StopSuspendedExternal           // PendingExternal is populated
	StopRaised                      // an uncaught exception propagated past the root frame

	// StopAwaitingFutures means vm.PendingFutureIDs is populated with
	// every CallId this step needs resolved before it can continue
	// (spec.md §4.5's ResolveFutures): a bare `await external_future`
	// reports exactly one id; a gather() still holding unresolved
	// ExternalFuture items reports all of them at once, matching
	// FutureSnapshot::resume's "every pending id, no strangers" rule.
	StopAwaitingFutures
)

// StepOutcome is what one call to Step reports.
type StepOutcome struct {
	Reason StopReason
	Result pyvalue.Value
	Err    *pyerr.RunError
}

// Step runs instructions until the interpreter must stop: the root frame
// returned a value, an external/os call needs to suspend execution, or
// an uncaught exception escaped every frame.
func (vm *Interpreter) Step() StepOutcome {
	for {
		fr := vm.top()
		if fr.IP >= len(fr.Code.Instructions) {
			return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("fell off the end of a function body")}
		}
		instr := fr.Code.Instructions[fr.IP]
		fr.IP++

		if err := vm.Tracker.OnInstruction(); err != nil {
			outcome, done := vm.raise(pyerr.FromResourceError(err))
			if done {
				return outcome
			}
			continue
		}

		outcome, done := vm.execOne(fr, instr)
		if done {
			return outcome
		}
	}
}

// execOne executes a single instruction against fr, returning (outcome,
// true) if the interpreter must stop, or (zero, false) to keep stepping.
func (vm *Interpreter) execOne(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	switch instr.Op {
	case opcodes.OpNop:
		return StepOutcome{}, false

	case opcodes.OpLoadConst:
		vm.push(vm.Heap.CloneValue(fr.Code.Constants[instr.Arg]))
		return StepOutcome{}, false

	case opcodes.OpLoadLocal:
		v := fr.Locals[instr.Arg]
		vm.push(vm.Heap.CloneValue(v))
		return StepOutcome{}, false

	case opcodes.OpStoreLocal:
		v := vm.pop()
		old := fr.Locals[instr.Arg]
		fr.Locals[instr.Arg] = v
		if !old.IsUndefined() {
			vm.Heap.DropValue(old)
		}
		return StepOutcome{}, false

	case opcodes.OpLoadUndefinedCheck:
		v := fr.Locals[instr.Arg]
		if v.IsUndefined() {
			return vm.raise(pyerr.Exc(pyerr.UnboundLocalError, "local variable referenced before assignment"))
		}
		return StepOutcome{}, false

	case opcodes.OpLoadGlobal:
		mod := vm.moduleFrame()
		v := mod.Locals[instr.Arg]
		if v.IsUndefined() {
			return vm.raise(pyerr.Exc(pyerr.NameError, "name is not defined"))
		}
		vm.push(vm.Heap.CloneValue(v))
		return StepOutcome{}, false

	case opcodes.OpStoreGlobal:
		mod := vm.moduleFrame()
		v := vm.pop()
		old := mod.Locals[instr.Arg]
		mod.Locals[instr.Arg] = v
		if !old.IsUndefined() {
			vm.Heap.DropValue(old)
		}
		return StepOutcome{}, false

	case opcodes.OpLoadCell, opcodes.OpLoadClosureCell:
		cellRef := fr.Locals[instr.Arg]
		cell := vm.Heap.Get(cellRef.Ref).(*heap.Cell)
		vm.push(vm.Heap.CloneValue(cell.V))
		return StepOutcome{}, false

	case opcodes.OpStoreCell:
		v := vm.pop()
		cellRef := fr.Locals[instr.Arg]
		cell := vm.Heap.Get(cellRef.Ref).(*heap.Cell)
		old := cell.V
		cell.V = v
		if !old.IsUndefined() {
			vm.Heap.DropValue(old)
		}
		return StepOutcome{}, false

	case opcodes.OpPop:
		vm.Heap.DropValue(vm.pop())
		return StepOutcome{}, false

	case opcodes.OpDup:
		v := vm.peek()
		vm.push(vm.Heap.CloneValue(v))
		return StepOutcome{}, false

	case opcodes.OpRot2:
		n := len(vm.Stack)
		vm.Stack[n-1], vm.Stack[n-2] = vm.Stack[n-2], vm.Stack[n-1]
		return StepOutcome{}, false

	case opcodes.OpAdd, opcodes.OpSub, opcodes.OpMul, opcodes.OpDiv, opcodes.OpFloorDiv, opcodes.OpMod, opcodes.OpPow:
		return vm.execArith(instr.Op)

	case opcodes.OpNeg, opcodes.OpPos, opcodes.OpNot, opcodes.OpInvert:
		return vm.execUnary(instr.Op)

	case opcodes.OpEq, opcodes.OpNe, opcodes.OpLt, opcodes.OpLe, opcodes.OpGt, opcodes.OpGe, opcodes.OpIs, opcodes.OpIsNot, opcodes.OpIn, opcodes.OpNotIn:
		return vm.execCompare(instr.Op)

	case opcodes.OpBuildList, opcodes.OpBuildTuple, opcodes.OpBuildSet, opcodes.OpBuildDict:
		return vm.execBuildContainer(instr)

	case opcodes.OpListAppend:
		v := vm.pop()
		lst := vm.Stack[len(vm.Stack)-1]
		l := vm.Heap.Get(lst.Ref).(*heap.List)
		l.Append(vm.Heap, lst.Ref, v)
		return StepOutcome{}, false

	case opcodes.OpDictSetItem:
		val := vm.pop()
		key := vm.pop()
		d := vm.Stack[len(vm.Stack)-1]
		dict := vm.Heap.Get(d.Ref).(*heap.Dict)
		if _, err := dict.Set(vm.Heap, d.Ref, key, val); err != nil {
			return vm.raise(pyerr.Exc(pyerr.TypeError, "%s", err.Error()))
		}
		return StepOutcome{}, false

	case opcodes.OpBinarySubscr:
		return vm.execSubscr()

	case opcodes.OpStoreSubscr:
		return vm.execStoreSubscr()

	case opcodes.OpGetIter:
		return vm.execGetIter()

	case opcodes.OpForIter:
		return vm.execForIter(fr, instr)

	case opcodes.OpJump:
		fr.IP = int(instr.Arg)
		return StepOutcome{}, false

	case opcodes.OpJumpIfFalse:
		v := vm.pop()
		cond := vm.Heap.Bool(v)
		vm.Heap.DropValue(v)
		if !cond {
			fr.IP = int(instr.Arg)
		}
		return StepOutcome{}, false

	case opcodes.OpJumpIfTrue:
		v := vm.pop()
		cond := vm.Heap.Bool(v)
		vm.Heap.DropValue(v)
		if cond {
			fr.IP = int(instr.Arg)
		}
		return StepOutcome{}, false

	case opcodes.OpJumpIfFalseOrPop:
		if !vm.Heap.Bool(vm.peek()) {
			fr.IP = int(instr.Arg)
		} else {
			vm.Heap.DropValue(vm.pop())
		}
		return StepOutcome{}, false

	case opcodes.OpJumpIfTrueOrPop:
		if vm.Heap.Bool(vm.peek()) {
			fr.IP = int(instr.Arg)
		} else {
			vm.Heap.DropValue(vm.pop())
		}
		return StepOutcome{}, false

	case opcodes.OpLoadAttr:
		return vm.execLoadAttr(fr, instr)

	case opcodes.OpStoreAttr:
		return vm.execStoreAttr(fr, instr)

	case opcodes.OpLoadMethod:
		return vm.execLoadAttr(fr, instr)

	case opcodes.OpCall:
		return vm.execCall(fr, instr, nil)

	case opcodes.OpCallMethod:
		return vm.execCall(fr, instr, nil)

	case opcodes.OpCallKw:
		return vm.execCallKw(fr, instr)

	case opcodes.OpMakeFunction:
		return vm.execMakeFunction(fr, instr)

	case opcodes.OpReturnValue:
		return vm.execReturn()

	case opcodes.OpRaise:
		return vm.execRaise()

	case opcodes.OpRaiseFrom:
		return vm.execRaiseFrom()

	case opcodes.OpReraise:
		return vm.execReraise()

	case opcodes.OpPushExceptHandler:
		return vm.execPushExceptHandler()

	case opcodes.OpPopExceptHandler:
		return vm.execPopExceptHandler()

	case opcodes.OpSetupFinally:
		return vm.execSetupFinally()

	case opcodes.OpEndFinally:
		return vm.execEndFinally()

	case opcodes.OpYield:
		return vm.execYield()

	case opcodes.OpYieldFrom:
		return vm.execYieldFrom(fr)

	case opcodes.OpAwait, opcodes.OpGetAwaitable:
		return vm.execAwait()

	case opcodes.OpBuildClass:
		return vm.execBuildClass(instr)

	case opcodes.OpLoadBuildClass:
		return StepOutcome{}, false

	case opcodes.OpBoolAnd, opcodes.OpBoolOr:
		return vm.execBoolOp(instr.Op)

	case opcodes.OpDeleteSubscr:
		return vm.execDeleteSubscr()

	case opcodes.OpDeleteAttr:
		return vm.execDeleteAttr(instr)

	case opcodes.OpUnpackSequence:
		return vm.execUnpackSequence(instr)

	default:
		return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("unknown opcode")}, true
	}
}

// raise begins unwinding err from the current frame, consulting the
// frame's exception table (spec.md §4.3 step 4) and popping frames until
// a handler is found or the root frame is exhausted.
func (vm *Interpreter) raise(err *pyerr.RunError) (StepOutcome, bool) {
	for {
		fr := vm.top()
		if err.Catchable() {
			if entry, ok := opcodesFindHandler(fr, err); ok {
				for len(vm.Stack) > fr.StackBase+entry.StackDepth {
					vm.Heap.DropValue(vm.pop())
				}
				fr.IP = entry.HandlerPC
				vm.pendingExceptionContext = err.Raise
				vm.push(excValueFor(vm, err))
				return StepOutcome{}, false
			}
		}
		if len(vm.Frames) == 1 {
			return StepOutcome{Reason: StopRaised, Err: err}, true
		}
		popped := vm.PopFrame()
		for len(vm.Stack) > popped.StackBase {
			vm.Heap.DropValue(vm.pop())
		}
		if pw, ok := vm.pendingByFrame[popped]; ok {
			delete(vm.pendingByFrame, popped)
			if pw.kind == pendingGeneratorAdvance {
				if gen, ok := vm.Heap.Get(pw.acc.Ref).(*heap.Generator); ok {
					gen.State = heap.GenExhausted
				}
				vm.Heap.DropValue(pw.acc)
				// PEP 479: a StopIteration escaping the generator's own
				// frame (as opposed to a fall-off-the-end return, which
				// execReturn turns into StopIteration deliberately) must
				// not be mistaken by the caller for normal exhaustion.
				if err.Matches(pyerr.StopIteration) {
					err = pyerr.Exc(pyerr.RuntimeError, "generator raised StopIteration")
				}
			}
		}
	}
}

func excValueFor(vm *Interpreter, err *pyerr.RunError) pyvalue.Value {
	if err.Raise != nil && err.Raise.Instance.Kind != pyvalue.KindUndefined {
		return vm.Heap.CloneValue(err.Raise.Instance)
	}
	return pyvalue.None
}

func opcodesFindHandler(fr *frame.Frame, err *pyerr.RunError) (opcodes.ExceptionTableEntry, bool) {
	return opcodes.FindHandler(fr.Code.ExceptTable, fr.IP-1)
}
