package vm

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/stdlib"
)

// applyCallResult converts a callResult (from invoke, resumeCombinator or
// a generator delivery) into the StepOutcome contract execOne's callers
// expect, pushing a plain value, propagating a raise, or reporting a
// host suspension.
func (vm *Interpreter) applyCallResult(res callResult) (StepOutcome, bool) {
	switch res.outcome {
	case callOutcomeValue:
		if res.err != nil {
			return vm.raise(res.err)
		}
		vm.push(res.value)
		return StepOutcome{}, false
	case callOutcomeFramePushed:
		return StepOutcome{}, false
	case callOutcomeSuspend:
		return StepOutcome{Reason: StopSuspendedExternal}, true
	case callOutcomeAwaitFutures:
		vm.PendingFutureIDs = res.futureIDs
		return StepOutcome{Reason: StopAwaitingFutures}, true
	default:
		return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("unhandled call outcome")}, true
	}
}

func (vm *Interpreter) dispatchCall(callee pyvalue.Value, args []pyvalue.Value, kwargs []pyvalue.KwArg, fr *frame.Frame) (StepOutcome, bool) {
	res := vm.invoke(callee, args, kwargs, fr.IP, fr.Code.Name)
	return vm.applyCallResult(res)
}

// execCall handles OpCall/OpCallMethod: positional-only calls where
// instr.Arg is the argument count and the callee sits just beneath them.
func (vm *Interpreter) execCall(fr *frame.Frame, instr opcodes.Instruction, _ []string) (StepOutcome, bool) {
	args := vm.popN(int(instr.Arg))
	callee := vm.pop()
	return vm.dispatchCall(callee, args, nil, fr)
}

// execCallKw handles OpCallKw. Convention: the stack carries, bottom to
// top, [callee, pos_args(instr.Arg)..., kw_values(instr.Arg2)...,
// names_tuple], where names_tuple is a heap Tuple of interned-string
// keyword names pushed by a preceding OpLoadConst — CPython's own
// CALL_FUNCTION_KW shape, adapted to this stack machine.
func (vm *Interpreter) execCallKw(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	namesVal := vm.pop()
	names, ok := vm.Heap.Get(namesVal.Ref).(*heap.Tuple)
	if !ok {
		vm.Heap.DropValue(namesVal)
		return vm.raise(pyerr.InternalError("OpCallKw names operand is not a tuple"))
	}
	kwVals := vm.popN(int(instr.Arg2))
	posArgs := vm.popN(int(instr.Arg))
	callee := vm.pop()

	kwargs := make([]pyvalue.KwArg, len(names.Items))
	for i, nameVal := range names.Items {
		kwargs[i] = pyvalue.KwArg{Name: vm.Interns.String(nameVal.SID), Value: kwVals[i]}
	}
	vm.Heap.DropValue(namesVal)
	return vm.dispatchCall(callee, posArgs, kwargs, fr)
}

// execMakeFunction builds either a bare DefFunction Value (no captures, no
// defaults) or a Closure heap object (spec.md §3.3/§4.4). Default values
// already live in the compiled Signature, so only captured free-variable
// cells need to come off the stack.
func (vm *Interpreter) execMakeFunction(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	fnID := pyvalue.FunctionId(instr.Arg)
	fn := vm.functionByID(fnID)
	if fn == nil {
		return vm.raise(pyerr.InternalError("unknown function id in MakeFunction"))
	}
	numFree := len(fn.FreeVarEnclosing)
	if numFree == 0 && len(fn.Signature.Defaults) == 0 {
		vm.push(pyvalue.DefFunction(fnID))
		return StepOutcome{}, false
	}
	cells := vm.popN(numFree)
	cl := heap.NewClosure(fnID, cells, fn.Signature.Defaults)
	id, err := vm.Heap.Allocate(cl)
	if err != nil {
		return vm.raise(pyerr.FromResourceError(err))
	}
	vm.push(pyvalue.Ref(id))
	return StepOutcome{}, false
}

// execReturn handles OpReturnValue: pop the finishing frame, release its
// locals, and deliver the return value to whoever is waiting on it —
// either a registered pendingWork continuation (combinator, constructor,
// generator advance) or the new top frame's stack, or report completion
// if the root frame itself just returned.
func (vm *Interpreter) execReturn() (StepOutcome, bool) {
	retVal := vm.pop()
	poppedFrame := vm.PopFrame()
	vm.Heap.DropValues(poppedFrame.Locals)

	if pw, ok := vm.pendingByFrame[poppedFrame]; ok {
		delete(vm.pendingByFrame, poppedFrame)
		switch pw.kind {
		case pendingGeneratorAdvance:
			gen, _ := vm.Heap.Get(pw.acc.Ref).(*heap.Generator)
			if gen != nil {
				gen.State = heap.GenExhausted
			}
			vm.Heap.DropValue(retVal)
			vm.Heap.DropValue(pw.acc)
			return vm.applyCallResult(callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.StopIteration, "")})
		case pendingAwait:
			gen, _ := vm.Heap.Get(pw.acc.Ref).(*heap.Generator)
			if gen != nil {
				gen.State = heap.GenExhausted
			}
			vm.Heap.DropValue(pw.acc)
			return vm.applyCallResult(callResult{outcome: callOutcomeValue, value: retVal})
		case pendingGather:
			res := vm.completeGatherItem(pw, retVal)
			return vm.applyCallResult(res)
		default:
			res := vm.resumeCombinator(pw, retVal)
			return vm.applyCallResult(res)
		}
	}

	if len(vm.Frames) == 0 {
		return StepOutcome{Reason: StopCompleted, Result: retVal}, true
	}
	vm.push(retVal)
	return StepOutcome{}, false
}

// suspendAndDeliver implements the shared half of OpYield/OpYieldFrom:
// pop the currently-advancing generator frame, stash its remaining
// operand stack, mark it suspended, and deliver val to whichever frame
// called next()/send() (spec.md §3.6 "coroutines are just frames").
func (vm *Interpreter) suspendAndDeliver(val pyvalue.Value) (StepOutcome, bool) {
	fr := vm.top()
	pw, ok := vm.pendingByFrame[fr]
	if !ok || (pw.kind != pendingGeneratorAdvance && pw.kind != pendingAwait) {
		return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("yield outside an advancing generator frame")}, true
	}
	delete(vm.pendingByFrame, fr)
	popped := vm.PopFrame()
	gen, _ := vm.Heap.Get(pw.acc.Ref).(*heap.Generator)
	if gen != nil {
		gen.SavedStack = append([]pyvalue.Value(nil), vm.Stack[popped.StackBase:]...)
		gen.State = heap.GenSuspended
	}
	vm.Stack = vm.Stack[:popped.StackBase]
	vm.Heap.DropValue(pw.acc)
	return vm.applyCallResult(callResult{outcome: callOutcomeValue, value: val})
}

func (vm *Interpreter) execYield() (StepOutcome, bool) {
	val := vm.pop()
	return vm.suspendAndDeliver(val)
}

// execYieldFrom implements a scoped `yield from` over a plain iterable
// delegate: each resume re-enters this same instruction (fr.IP is backed
// up by one) until the delegate is exhausted, at which point it pushes
// None as the yield-from expression's result. Delegating into another
// user generator recursively is not modeled by this build.
func (vm *Interpreter) execYieldFrom(fr *frame.Frame) (StepOutcome, bool) {
	top := vm.peek()
	if top.Kind != pyvalue.KindRef {
		vm.pop()
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object is not iterable", vm.Heap.TypeName(top)))
	}
	if _, ok := vm.Heap.Get(top.Ref).(*heap.Iter); !ok {
		outcome, done := vm.execGetIter()
		if done {
			return outcome, done
		}
		fr.IP--
		return StepOutcome{}, false
	}
	it := vm.Heap.Get(top.Ref).(*heap.Iter)
	v, err := it.Next(vm.Heap)
	if err != nil {
		re := err.(*pyerr.RunError)
		if re.Matches(pyerr.StopIteration) {
			vm.Heap.DropValue(vm.pop())
			vm.push(pyvalue.None)
			return StepOutcome{}, false
		}
		return vm.raise(re)
	}
	fr.IP--
	return vm.suspendAndDeliver(v)
}

// execAwait implements `await expr` over a Coroutine: pushes its saved
// frame exactly like a generator advance, but a fall-off-the-end return
// delivers the value directly rather than as StopIteration (spec.md §3.6
// "coroutines are just frames").
func (vm *Interpreter) execAwait() (StepOutcome, bool) {
	v := vm.pop()
	if v.Kind == pyvalue.KindExternalFuture {
		vm.PendingFutureIDs = []pyvalue.CallId{v.Call}
		return StepOutcome{Reason: StopAwaitingFutures}, true
	}
	if v.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(v)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "object %s can't be used in 'await' expression", vm.Heap.TypeName(v)))
	}
	switch obj := vm.Heap.Get(v.Ref).(type) {
	case *heap.Generator:
		if !obj.Coroutine {
			vm.Heap.DropValue(v)
			return vm.raise(pyerr.Exc(pyerr.TypeError, "object is not awaitable"))
		}
		res := vm.advanceGenerator(v.Ref, pyvalue.Undefined, false, pendingAwait)
		vm.Heap.DropValue(v)
		return vm.applyCallResult(res)
	case *heap.GatherFuture:
		res := vm.startGather(v.Ref)
		vm.Heap.DropValue(v)
		return vm.applyCallResult(res)
	default:
		vm.Heap.DropValue(v)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "object is not awaitable"))
	}
}

// generatorMethodNames is consulted by execLoadAttr to recognize the
// driver methods a Generator exposes without going through the general
// heap-payload GetAttr/stdlib-method-table lookup (spec.md §3.6/§3.7).
var generatorMethodNames = map[string]bool{"send": true, "close": true, "throw": true, "__next__": true}

func (vm *Interpreter) execLoadAttr(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	obj := vm.pop()
	attrID := intern.StringId(uint32(instr.Arg))
	name := vm.Interns.String(attrID)

	if obj.Kind == pyvalue.KindRef {
		if _, ok := vm.Heap.Get(obj.Ref).(*heap.Generator); ok && generatorMethodNames[name] {
			bm := heap.NewBoundGeneratorMethod(obj, name)
			id, err := vm.Heap.Allocate(bm)
			if err != nil {
				return vm.raise(pyerr.FromResourceError(err))
			}
			vm.push(pyvalue.Ref(id))
			return StepOutcome{}, false
		}

		ac, found := vm.Heap.Get(obj.Ref).GetAttr(vm.Heap, attrID)
		if found {
			return vm.deliverAttr(obj, ac)
		}

		typeName := vm.Heap.TypeName(obj)
		if _, ok := stdlib.LookupMethod(typeName, name); ok {
			bm := heap.NewBoundBuiltinMethod(obj, typeName, name)
			id, err := vm.Heap.Allocate(bm)
			if err != nil {
				return vm.raise(pyerr.FromResourceError(err))
			}
			vm.push(pyvalue.Ref(id))
			return StepOutcome{}, false
		}
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object has no attribute %q", typeName, name))
	}

	vm.Heap.DropValue(obj)
	return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object has no attribute %q", vm.Heap.TypeName(obj), name))
}

// deliverAttr turns a found AttrCallResult from GetAttr into a pushed
// Value, binding descriptors into a BoundMethod the way CPython's
// instance.method lookup does (spec.md §9 "descriptors and bound
// methods" — always bound as an instance method, staticmethod/
// classmethod nuance is not modeled).
func (vm *Interpreter) deliverAttr(obj pyvalue.Value, ac pyvalue.AttrCallResult) (StepOutcome, bool) {
	switch ac.Kind {
	case pyvalue.ACDescriptorGet:
		bm := heap.NewBoundMethod(obj, ac.Callable)
		id, err := vm.Heap.Allocate(bm)
		if err != nil {
			vm.Heap.DropValue(obj)
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
		return StepOutcome{}, false
	case pyvalue.ACValue:
		vm.Heap.DropValue(obj)
		vm.push(ac.Value)
		return StepOutcome{}, false
	default:
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "attribute access of this kind is not supported by this build"))
	}
}

func (vm *Interpreter) execStoreAttr(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	obj := vm.pop()
	val := vm.pop()
	attrID := intern.StringId(uint32(instr.Arg))

	if obj.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(val)
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object has no attributes", vm.Heap.TypeName(obj)))
	}
	inst, ok := vm.Heap.Get(obj.Ref).(*heap.Instance)
	if !ok {
		vm.Heap.DropValue(val)
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object attributes are read-only", vm.Heap.TypeName(obj)))
	}
	if err := inst.SetAttr(vm.Heap, obj.Ref, attrID, val); err != nil {
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%s", err.Error()))
	}
	vm.Heap.DropValue(obj)
	return StepOutcome{}, false
}

// excTypeForClassName maps a raised class's name onto the representative
// flat ExcType hierarchy this build matches except clauses against
// (spec.md §6.5); classes outside the known builtin set are treated as
// plain RuntimeError-compatible user exceptions.
func excTypeForClassName(name string) pyerr.ExcType {
	switch pyerr.ExcType(name) {
	case pyerr.ValueError, pyerr.TypeError, pyerr.KeyError, pyerr.IndexError,
		pyerr.AttributeError, pyerr.NameError, pyerr.UnboundLocalError,
		pyerr.StopIteration, pyerr.GeneratorExit, pyerr.RuntimeError,
		pyerr.RecursionError, pyerr.MemoryError, pyerr.ZeroDivisionError,
		pyerr.NotImplementedErr, pyerr.CancelledError:
		return pyerr.ExcType(name)
	default:
		return pyerr.RuntimeError
	}
}

// coerceRaisedInstance turns v (the value an OpRaise/OpRaiseFrom found on
// top of the stack) into the ExcType/message pair a SimpleException needs,
// or reports ok=false (the TypeError `raise` itself must report) when v
// doesn't derive from BaseException. v is left alive on ok so the caller
// can preserve its identity via pyerr.ExcInstance; the caller is
// responsible for dropping it in both branches.
func (vm *Interpreter) coerceRaisedInstance(v pyvalue.Value) (name string, msg string, ok bool) {
	if v.Kind != pyvalue.KindRef {
		return "", "", false
	}
	inst, isInst := vm.Heap.Get(v.Ref).(*heap.Instance)
	if !isInst {
		return "", "", false
	}
	cls, _ := vm.Heap.Get(inst.Class.Ref).(*heap.ClassObject)
	name = "RuntimeError"
	if cls != nil {
		name = cls.Name
	}
	msg = vm.Heap.Repr(v)
	if inst.Attrs != nil {
		if m, ok2 := inst.Attrs.Get(vm.Heap, pyvalue.InternString(vm.Interns.InternString("args"))); ok2 {
			msg = vm.Heap.Str(m)
		}
	}
	return name, msg, true
}

// raiseWithContext attaches the currently-handled exception (if any) as
// err's __context__ before dispatching it the same way raise does,
// implementing spec.md §3.5/§4.3/§7's "each raise inside an active except
// block records the currently-handled exception as the new one's
// __context__". A bare reraise (execReraise) never goes through here: it
// re-propagates the same ExceptionRaise, which already carries whatever
// context it was given when first raised.
func (vm *Interpreter) raiseWithContext(err *pyerr.RunError) (StepOutcome, bool) {
	if err.Kind == pyerr.KindExc && err.Raise != nil && err.Raise.Exc != nil &&
		vm.handledException != nil && vm.handledException.Exc != err.Raise.Exc {
		err.Raise.Exc.Context = vm.handledException.Exc
	}
	return vm.raise(err)
}

func (vm *Interpreter) execRaise() (StepOutcome, bool) {
	v := vm.pop()
	name, msg, ok := vm.coerceRaisedInstance(v)
	if !ok {
		vm.Heap.DropValue(v)
		return vm.raiseWithContext(pyerr.Exc(pyerr.TypeError, "exceptions must derive from BaseException"))
	}
	return vm.raiseWithContext(pyerr.ExcInstance(v, excTypeForClassName(name), msg))
}

// execRaiseFrom implements `raise X from Y` (spec.md §3.5/§7): pops the
// cause Y (top of stack) then the exception X, sets X's __context__ like
// a bare raise would, and additionally sets __cause__ = Y and
// suppress_context = True. `raise X from None` sets no __cause__ but
// still suppresses context display, matching CPython.
func (vm *Interpreter) execRaiseFrom() (StepOutcome, bool) {
	causeVal := vm.pop()
	v := vm.pop()

	name, msg, ok := vm.coerceRaisedInstance(v)
	if !ok {
		vm.Heap.DropValue(v)
		vm.Heap.DropValue(causeVal)
		return vm.raiseWithContext(pyerr.Exc(pyerr.TypeError, "exceptions must derive from BaseException"))
	}
	runErr := pyerr.ExcInstance(v, excTypeForClassName(name), msg)
	runErr.Raise.Exc.SuppressContext = true

	if causeVal.Kind != pyvalue.KindNone {
		causeName, causeMsg, causeOk := vm.coerceRaisedInstance(causeVal)
		vm.Heap.DropValue(causeVal)
		if !causeOk {
			return vm.raiseWithContext(pyerr.Exc(pyerr.TypeError, "exception causes must derive from BaseException"))
		}
		runErr.Raise.Exc.Cause = &pyerr.SimpleException{Kind: excTypeForClassName(causeName), Message: causeMsg}
	} else {
		vm.Heap.DropValue(causeVal)
	}
	return vm.raiseWithContext(runErr)
}

func (vm *Interpreter) execReraise() (StepOutcome, bool) {
	if vm.handledException == nil {
		return vm.raiseWithContext(pyerr.Exc(pyerr.RuntimeError, "No active exception to re-raise"))
	}
	return vm.raise(&pyerr.RunError{Kind: pyerr.KindExc, Raise: vm.handledException})
}

// execPushExceptHandler claims the exception raise() just dispatched into
// this handler as the active handledException, saving whatever was
// active before onto exceptionStack so a nested try/except inside this
// handler body can restore it (spec.md §4.3 exception-context nesting).
// Must be the first instruction of a compiled except-handler body.
func (vm *Interpreter) execPushExceptHandler() (StepOutcome, bool) {
	vm.exceptionStack = append(vm.exceptionStack, vm.handledException)
	vm.handledException = vm.pendingExceptionContext
	vm.pendingExceptionContext = nil
	return StepOutcome{}, false
}

// execPopExceptHandler restores the exception context active before this
// handler body was entered. Must be the last instruction of a compiled
// except-handler body.
func (vm *Interpreter) execPopExceptHandler() (StepOutcome, bool) {
	n := len(vm.exceptionStack)
	if n == 0 {
		vm.handledException = nil
		return StepOutcome{}, false
	}
	vm.handledException = vm.exceptionStack[n-1]
	vm.exceptionStack = vm.exceptionStack[:n-1]
	return StepOutcome{}, false
}

// execSetupFinally pushes a None sentinel before the non-exceptional path
// falls into a compiled finally body, so execEndFinally has a uniform
// value to inspect regardless of whether control reached the finally
// block by falling through or by exception unwinding.
func (vm *Interpreter) execSetupFinally() (StepOutcome, bool) {
	vm.push(pyvalue.None)
	return StepOutcome{}, false
}

// execEndFinally closes a compiled finally body: a None sentinel (pushed
// by OpSetupFinally) means control fell through normally, nothing to
// re-propagate. Any other value means an exception drove control here
// (the same handler-dispatch mechanism except uses, via the exception
// table); execEndFinally drops that stack value and re-raises the
// in-flight exception from handledException so it keeps propagating past
// the finally block once cleanup has run.
func (vm *Interpreter) execEndFinally() (StepOutcome, bool) {
	marker := vm.pop()
	if marker.Kind == pyvalue.KindNone {
		return StepOutcome{}, false
	}
	vm.Heap.DropValue(marker)
	if vm.handledException == nil {
		return StepOutcome{}, false
	}
	return vm.raise(&pyerr.RunError{Kind: pyerr.KindExc, Raise: vm.handledException})
}

// execBuildClass resolves a compiled registry.Class template (found via
// vm.Classes, keyed by instr.Arg) against instr.Arg2 already-evaluated
// base-class values on the stack, computes a simple linearized MRO
// (each base's own MRO, in declaration order, first occurrence wins —
// sufficient for the single/no-diamond-inheritance shapes spec.md §3.3
// exercises), and allocates the resulting ClassObject.
func (vm *Interpreter) execBuildClass(instr opcodes.Instruction) (StepOutcome, bool) {
	classDef := vm.Classes[uint32(instr.Arg)]
	if classDef == nil {
		return vm.raise(pyerr.InternalError("unknown class id in BuildClass"))
	}
	baseVals := vm.popN(int(instr.Arg2))

	uid := vm.allocClassUID()
	cls := heap.NewClassObject(classDef.Name, uid)
	cls.Bases = baseVals
	cls.Slots = classDef.Slots

	seen := make(map[uint32]bool)
	var mro []pyvalue.Value
	for _, b := range baseVals {
		bc, ok := vm.Heap.Get(b.Ref).(*heap.ClassObject)
		if !ok {
			continue
		}
		chain := append([]pyvalue.Value{b}, bc.MRO...)
		for _, m := range chain {
			mc, ok := vm.Heap.Get(m.Ref).(*heap.ClassObject)
			if !ok || seen[mc.UID] {
				continue
			}
			seen[mc.UID] = true
			mro = append(mro, vm.Heap.CloneValue(m))
		}
	}
	cls.MRO = mro

	for name, v := range classDef.Namespace {
		cls.Namespace[name] = vm.Heap.CloneValue(v)
	}

	id, err := vm.Heap.Allocate(cls)
	if err != nil {
		vm.Heap.DropValues(baseVals)
		vm.Heap.DropValues(mro)
		return vm.raise(pyerr.FromResourceError(err))
	}
	vm.push(pyvalue.Ref(id))
	return StepOutcome{}, false
}

// execBoolOp implements `and`/`or` over two already-evaluated operands:
// short-circuiting at the bytecode level would need a conditional jump
// rather than a binary opcode, so this build evaluates both sides first
// and picks one by Python truthiness, matching value semantics but not
// skipping the unchosen side's side effects (see DESIGN.md).
func (vm *Interpreter) execBoolOp(op opcodes.Opcode) (StepOutcome, bool) {
	b := vm.pop()
	a := vm.pop()
	truthy := vm.Heap.Bool(a)
	if op == opcodes.OpBoolAnd {
		if !truthy {
			vm.Heap.DropValue(b)
			vm.push(a)
		} else {
			vm.Heap.DropValue(a)
			vm.push(b)
		}
		return StepOutcome{}, false
	}
	if truthy {
		vm.Heap.DropValue(b)
		vm.push(a)
	} else {
		vm.Heap.DropValue(a)
		vm.push(b)
	}
	return StepOutcome{}, false
}

func (vm *Interpreter) execDeleteSubscr() (StepOutcome, bool) {
	key := vm.pop()
	container := vm.pop()
	if container.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(container)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object doesn't support item deletion", vm.Heap.TypeName(container)))
	}
	switch c := vm.Heap.Get(container.Ref).(type) {
	case *heap.List:
		n := len(c.Items)
		i, ok := indexFor(key, n)
		if !ok {
			vm.Heap.DropValue(key)
			vm.Heap.DropValue(container)
			return vm.raise(pyerr.Exc(pyerr.IndexError, "list assignment index out of range"))
		}
		vm.Heap.DropValue(c.Items[i])
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(container)
		return StepOutcome{}, false
	case *heap.Dict:
		if !c.Delete(vm.Heap, key) {
			vm.Heap.DropValue(key)
			vm.Heap.DropValue(container)
			return vm.raise(pyerr.Exc(pyerr.KeyError, "%s", vm.Heap.Repr(key)))
		}
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(container)
		return StepOutcome{}, false
	default:
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(container)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object doesn't support item deletion", vm.Heap.TypeName(container)))
	}
}

func (vm *Interpreter) execDeleteAttr(instr opcodes.Instruction) (StepOutcome, bool) {
	obj := vm.pop()
	attrID := intern.StringId(uint32(instr.Arg))
	if obj.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object has no attributes", vm.Heap.TypeName(obj)))
	}
	inst, ok := vm.Heap.Get(obj.Ref).(*heap.Instance)
	if !ok || inst.Attrs == nil {
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object attribute deletion is not supported", vm.Heap.TypeName(obj)))
	}
	if !inst.Attrs.Delete(vm.Heap, pyvalue.InternString(attrID)) {
		vm.Heap.DropValue(obj)
		return vm.raise(pyerr.Exc(pyerr.AttributeError, "%q object has no attribute %q", vm.Heap.TypeName(obj), vm.Interns.String(attrID)))
	}
	vm.Heap.DropValue(obj)
	return StepOutcome{}, false
}

// execUnpackSequence pops a List/Tuple and pushes instr.Arg values in
// reverse order, so a sequence of plain STORE_FAST-style pops consumes
// them left to right (spec.md §3.2 "sequence unpacking").
func (vm *Interpreter) execUnpackSequence(instr opcodes.Instruction) (StepOutcome, bool) {
	v := vm.pop()
	count := int(instr.Arg)
	var items []pyvalue.Value
	if v.Kind == pyvalue.KindRef {
		switch c := vm.Heap.Get(v.Ref).(type) {
		case *heap.List:
			items = c.Items
		case *heap.Tuple:
			items = c.Items
		}
	}
	if items == nil || len(items) != count {
		vm.Heap.DropValue(v)
		return vm.raise(pyerr.Exc(pyerr.ValueError, "not enough values to unpack"))
	}
	for i := count - 1; i >= 0; i-- {
		vm.push(vm.Heap.CloneValue(items[i]))
	}
	vm.Heap.DropValue(v)
	return StepOutcome{}, false
}
