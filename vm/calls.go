package vm

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pysignature"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
	"github.com/wudi/heysb/stdlib"
)

// pendingKind discriminates the handful of AttrCallResult variants that
// drive more than one call before a single Value comes back to the
// caller's stack — spec.md §4.2's map/filter/reduce combinators. Each
// variant is modeled as "the next call to make, plus what's left to do
// after it returns", rather than a Go closure, so a Snapshot can still
// serialize it (package sandbox gob-encodes the whole Interpreter).
type pendingKind byte

const (
	pendingMap pendingKind = iota
	pendingFilter
	pendingReduce
	pendingConstruct

	// pendingGeneratorAdvance marks the frame pushed by next()/send() on a
	// plain generator: a fall-off-the-end return must surface as
	// StopIteration to the caller, not as a plain value (spec.md §3.6/§3.7
	// "PEP 479").
	pendingGeneratorAdvance

	// pendingAwait marks the frame pushed by `await coroutine`: a
	// fall-off-the-end return delivers the coroutine's value directly,
	// the way a function call's return normally does.
	pendingAwait

	// pendingGather marks the frame pushed to drive one GatherFuture
	// item's coroutine to completion; its result is recorded back into
	// the future (gatherFuture/idx) and the next pending item is driven
	// in its place, rather than being delivered to the caller directly.
	pendingGather
)

// pendingWork is installed on vm.pendingByFrame keyed by the callee frame
// whose OpReturnValue must be intercepted instead of left on top of the
// stack for the caller to consume directly.
type pendingWork struct {
	kind pendingKind

	callable pyvalue.Value
	items    []pyvalue.Value
	idx      int // index into items already dispatched

	results []pyvalue.Value // pendingMap: collected mapped values in order
	acc     pyvalue.Value    // pendingReduce: running accumulator; pendingConstruct: the new instance; pendingGeneratorAdvance/pendingAwait/pendingGather: Ref(Generator)

	// returnFrame is the frame whose stack the final produced value (a
	// list for map/filter, a scalar for reduce) must be pushed onto once
	// every item has been processed.
	returnFrame *frame.Frame

	// gatherFuture/idx identify which GatherFuture and item index a
	// pendingGather continuation is driving.
	gatherFuture pyvalue.Value
}

// resolveCallable turns any Value that is "callable" in the sense
// spec.md §4.2 describes (DefFunction/Closure/Builtin/BoundMethod/
// ClassObject) into either a pushed frame (for anything with real
// Python bytecode) or an immediately-available Value/error (builtins).
// kind reports which happened so callDispatch knows whether to keep
// stepping or to wait for the pushed frame to return.
type callOutcome byte

const (
	callOutcomeValue callOutcome = iota
	callOutcomeFramePushed
	callOutcomeSuspend

	// callOutcomeAwaitFutures means futureIDs lists every CallId a
	// gather() still needs resolved (spec.md §4.5 ResolveFutures).
	callOutcomeAwaitFutures
)

// callResult carries whichever of the callOutcome shapes applies; only
// one of Value/Err is meaningful when outcome is callOutcomeValue, and
// futureIDs is only meaningful for callOutcomeAwaitFutures.
type callResult struct {
	outcome   callOutcome
	value     pyvalue.Value
	err       *pyerr.RunError
	futureIDs []pyvalue.CallId
}

// invoke dispatches callee(args, kwargs) per spec.md §4.2/§4.4. It never
// itself drives a combinator continuation (ACReduceCall etc.) — that is
// callDispatch's job, since only callDispatch can decide what pendingWork
// to install keyed by the frame invoke pushes.
func (vm *Interpreter) invoke(callee pyvalue.Value, args []pyvalue.Value, kwargs []pyvalue.KwArg, callerLine int, callerFunc string) callResult {
	switch callee.Kind {
	case pyvalue.KindDefFunction:
		return vm.invokeDefFunction(callee.FnID, args, kwargs, callerLine, callerFunc)
	case pyvalue.KindBuiltin:
		return vm.invokeBuiltin(vm.Interns.String(callee.Name), args, kwargs)
	case pyvalue.KindRef:
		switch obj := vm.Heap.Get(callee.Ref).(type) {
		case *heap.Closure:
			res := vm.invokeClosure(obj, args, kwargs, callerLine, callerFunc)
			vm.Heap.DropValue(callee)
			return res
		case *heap.BoundMethod:
			boundArgs := append([]pyvalue.Value{vm.Heap.CloneValue(obj.Self)}, args...)
			res := vm.invoke(vm.Heap.CloneValue(obj.Func), boundArgs, kwargs, callerLine, callerFunc)
			vm.Heap.DropValue(callee)
			return res
		case *heap.BoundBuiltinMethod:
			boundArgs := append([]pyvalue.Value{vm.Heap.CloneValue(obj.Self)}, args...)
			res := vm.invokeMethodBuiltin(obj.SelfType, obj.Method, boundArgs, kwargs)
			vm.Heap.DropValue(callee)
			return res
		case *heap.BoundGeneratorMethod:
			res := vm.dispatchGeneratorMethod(obj, args)
			vm.Heap.DropValue(callee)
			return res
		case *heap.ClassObject:
			res := vm.invokeClassConstructor(callee.Ref, obj, args, kwargs, callerLine, callerFunc)
			vm.Heap.DropValue(callee)
			return res
		default:
			vm.Heap.DropValues(args)
			vm.Heap.DropValue(callee)
			return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.TypeError, "%q object is not callable", vm.Heap.TypeName(callee))}
		}
	default:
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.TypeError, "%q object is not callable", vm.Heap.TypeName(callee))}
	}
}

// invokeMethodBuiltin calls a stdlib type-method (list.append, str.upper,
// ...) already bound to its receiver as args[0].
func (vm *Interpreter) invokeMethodBuiltin(typeName, method string, args []pyvalue.Value, kwargs []pyvalue.KwArg) callResult {
	fn, ok := stdlib.LookupMethod(typeName, method)
	if !ok {
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.AttributeError, "%q object has no attribute %q", typeName, method)}
	}
	ac, err := fn(vm.Heap, args, kwargs)
	if err != nil {
		return callResult{outcome: callOutcomeValue, err: err}
	}
	switch ac.Kind {
	case pyvalue.ACMapCall, pyvalue.ACFilterCall, pyvalue.ACReduceCall:
		return vm.startCombinator(ac, vm.top())
	default:
		return vm.resultFromAttrCall(ac, nil)
	}
}

// advanceGenerator pushes gen's saved frame back onto vm.Frames to drive
// it one step (spec.md §3.6/§3.7): a fresh call pushes nothing extra onto
// the resumed stack, a resumed call pushes sent (or None). kind decides
// what happens when the frame falls off the end: pendingGeneratorAdvance
// surfaces StopIteration to the caller, pendingAwait delivers the
// returned value directly. Caller retains ownership of genRef.
func (vm *Interpreter) advanceGenerator(genRef pyvalue.HeapId, sent pyvalue.Value, isSend bool, kind pendingKind) callResult {
	gen, ok := vm.Heap.Get(genRef).(*heap.Generator)
	if !ok {
		vm.Heap.DropValue(sent)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.TypeError, "expected a generator")}
	}
	switch gen.State {
	case heap.GenExhausted:
		vm.Heap.DropValue(sent)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.StopIteration, "")}
	case heap.GenRunning:
		vm.Heap.DropValue(sent)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.RuntimeError, "generator already executing")}
	}
	started := gen.StartedOnce
	if isSend && !started {
		vm.Heap.DropValue(sent)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.TypeError, "can't send non-None value to a just-started generator")}
	}

	fr := gen.SavedFrame
	fr.StackBase = len(vm.Stack)
	vm.Stack = append(vm.Stack, gen.SavedStack...)
	gen.SavedStack = nil
	gen.State = heap.GenRunning
	gen.StartedOnce = true

	if perr := vm.PushFrame(fr); perr != nil {
		return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(perr)}
	}
	if started {
		if sent.Kind != pyvalue.KindUndefined {
			vm.push(sent)
		} else {
			vm.push(pyvalue.None)
		}
	} else if sent.Kind != pyvalue.KindUndefined {
		vm.Heap.DropValue(sent)
	}

	vm.Heap.IncRef(genRef)
	vm.pendingByFrame[fr] = &pendingWork{kind: kind, acc: pyvalue.Ref(genRef)}
	return callResult{outcome: callOutcomeFramePushed}
}

// dispatchGeneratorMethod implements next()/send()/close()/throw() for a
// Generator object, the handful of driver operations that must push a
// real frame rather than run as an ordinary stdlib builtin.
func (vm *Interpreter) dispatchGeneratorMethod(b *heap.BoundGeneratorMethod, args []pyvalue.Value) callResult {
	genRef := b.Gen.Ref
	switch b.Method {
	case "send":
		var v pyvalue.Value = pyvalue.None
		if len(args) > 0 {
			v = args[0]
			vm.Heap.DropValues(args[1:])
		}
		return vm.advanceGenerator(genRef, v, true, pendingGeneratorAdvance)
	case "__next__":
		vm.Heap.DropValues(args)
		return vm.advanceGenerator(genRef, pyvalue.Undefined, false, pendingGeneratorAdvance)
	case "close":
		vm.Heap.DropValues(args)
		gen, ok := vm.Heap.Get(genRef).(*heap.Generator)
		if ok {
			gen.State = heap.GenExhausted
			gen.SavedStack = nil
		}
		return callResult{outcome: callOutcomeValue, value: pyvalue.None}
	case "throw":
		vm.Heap.DropValues(args)
		gen, ok := vm.Heap.Get(genRef).(*heap.Generator)
		if ok {
			gen.State = heap.GenExhausted
		}
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.RuntimeError, "generator.throw is not supported by this build")}
	default:
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("unknown generator method")}
	}
}

func (vm *Interpreter) invokeBuiltin(name string, args []pyvalue.Value, kwargs []pyvalue.KwArg) callResult {
	if name == "next" && len(args) >= 1 && args[0].Kind == pyvalue.KindRef {
		if _, isGen := vm.Heap.Get(args[0].Ref).(*heap.Generator); isGen {
			res := vm.advanceGenerator(args[0].Ref, pyvalue.Undefined, false, pendingGeneratorAdvance)
			vm.Heap.DropValue(args[0])
			if len(args) > 1 {
				vm.Heap.DropValues(args[1:])
			}
			return res
		}
	}
	fn, ok := stdlib.LookupBuiltin(name)
	if !ok {
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.Exc(pyerr.NameError, "name %q is not defined", name)}
	}
	ac, err := fn(vm.Heap, args, toStdlibKwargs(kwargs))
	if err != nil {
		return callResult{outcome: callOutcomeValue, err: err}
	}
	switch ac.Kind {
	case pyvalue.ACMapCall, pyvalue.ACFilterCall, pyvalue.ACReduceCall:
		return vm.startCombinator(ac, vm.top())
	case pyvalue.ACExternalCall:
		vm.PendingExternal = &PendingExternalCall{Name: ac.FunctionName, Args: ac.Args, Kwargs: ac.Kwargs, CallID: vm.allocCallID()}
		return callResult{outcome: callOutcomeSuspend}
	case pyvalue.ACOsCall:
		vm.PendingExternal = &PendingExternalCall{IsOsCall: true, Name: ac.FunctionName, Args: ac.Args, Kwargs: ac.Kwargs, CallID: vm.allocCallID()}
		return callResult{outcome: callOutcomeSuspend}
	default:
		return vm.resultFromAttrCall(ac, nil)
	}
}

func toStdlibKwargs(kwargs []pyvalue.KwArg) []pyvalue.KwArg { return kwargs }

// resultFromAttrCall converts a stdlib/heap AttrCallResult that is
// immediately a value (or an error) into a callResult. Combinator
// variants (ACMapCall etc.) are handled by callDispatch, which calls
// this only after installing the corresponding pendingWork.
func (vm *Interpreter) resultFromAttrCall(ac pyvalue.AttrCallResult, err *pyerr.RunError) callResult {
	if err != nil {
		return callResult{outcome: callOutcomeValue, err: err}
	}
	switch ac.Kind {
	case pyvalue.ACValue:
		return callResult{outcome: callOutcomeValue, value: ac.Value}
	case pyvalue.ACCallFunction:
		return vm.invoke(ac.Callable, ac.Args, ac.Kwargs, 0, "")
	default:
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("unhandled AttrCallResult in this context")}
	}
}

func (vm *Interpreter) functionByID(id pyvalue.FunctionId) *registry.Function {
	return vm.Functions[id]
}

func (vm *Interpreter) invokeDefFunction(id pyvalue.FunctionId, args []pyvalue.Value, kwargs []pyvalue.KwArg, callerLine int, callerFunc string) callResult {
	fn := vm.functionByID(id)
	if fn == nil {
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("unknown function id")}
	}
	return vm.pushCall(fn, nil, args, kwargs, callerLine, callerFunc)
}

func (vm *Interpreter) invokeClosure(cl *heap.Closure, args []pyvalue.Value, kwargs []pyvalue.KwArg, callerLine int, callerFunc string) callResult {
	fn := vm.functionByID(cl.FnID)
	if fn == nil {
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("unknown function id")}
	}
	cellIDs := make([]pyvalue.HeapId, len(cl.FreeCells))
	for i, v := range cl.FreeCells {
		cellIDs[i] = v.Ref
	}
	return vm.pushCall(fn, cellIDs, args, kwargs, callerLine, callerFunc)
}

// pushCall binds args/kwargs against fn's signature, builds a fresh
// Frame with its cell slots populated (own cells first, then the
// closure's captured free cells), and pushes it — spec.md §4.3's call
// sequence, steps 1-4.
func (vm *Interpreter) pushCall(fn *registry.Function, freeCells []pyvalue.HeapId, args []pyvalue.Value, kwargs []pyvalue.KwArg, callerLine int, callerFunc string) callResult {
	ns, err := pysignature.Bind(vm.Heap, fn.Signature, args, toSigKwargs(kwargs))
	if err != nil {
		if re, ok := err.(*pyerr.RunError); ok {
			return callResult{outcome: callOutcomeValue, err: re}
		}
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError(err.Error())}
	}

	locals := make([]pyvalue.Value, fn.NumLocals)
	for i := range locals {
		locals[i] = pyvalue.Undefined
	}
	copy(locals, ns)

	for i, slot := range fn.CellVarSlots {
		if i < len(fn.CellVarSlots)-len(fn.FreeVarEnclosing) {
			var initial pyvalue.Value
			if slot < len(ns) {
				initial = ns[slot]
			} else {
				initial = pyvalue.Undefined
			}
			id, aerr := vm.Heap.Allocate(heap.NewCell(initial))
			if aerr != nil {
				vm.Heap.DropValues(locals)
				return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(aerr)}
			}
			locals[slot] = pyvalue.Ref(id)
		}
	}
	for j, enclosingIdx := range fn.FreeVarEnclosing {
		slot := fn.CellVarSlots[len(fn.CellVarSlots)-len(fn.FreeVarEnclosing)+j]
		if enclosingIdx < len(freeCells) {
			vm.Heap.IncRef(freeCells[enclosingIdx])
			locals[slot] = pyvalue.Ref(freeCells[enclosingIdx])
		}
	}

	fr := &frame.Frame{Code: fn, Locals: locals, CallerLine: callerLine, CallerFunc: callerFunc, StackBase: len(vm.Stack)}
	if perr := vm.PushFrame(fr); perr != nil {
		vm.Heap.DropValues(locals)
		return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(perr)}
	}
	vm.pendingGetattrFallback = append(vm.pendingGetattrFallback, false)
	return callResult{outcome: callOutcomeFramePushed}
}

func toSigKwargs(kwargs []pyvalue.KwArg) []pysignature.KwArg {
	out := make([]pysignature.KwArg, len(kwargs))
	for i, kw := range kwargs {
		out[i] = pysignature.KwArg{Name: kw.Name, Value: kw.Value}
	}
	return out
}

func (vm *Interpreter) invokeClassConstructor(classRef pyvalue.HeapId, cls *heap.ClassObject, args []pyvalue.Value, kwargs []pyvalue.KwArg, callerLine int, callerFunc string) callResult {
	vm.Heap.IncRef(classRef)
	id, err := vm.Heap.Allocate(heap.NewInstance(pyvalue.Ref(classRef)))
	if err != nil {
		vm.Heap.DropValues(args)
		return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(err)}
	}
	if initFn, ok := cls.Namespace["__init__"]; ok {
		boundArgs := append([]pyvalue.Value{vm.Heap.CloneValue(pyvalue.Ref(id))}, args...)
		res := vm.invoke(initFn, boundArgs, kwargs, callerLine, callerFunc)
		if res.outcome == callOutcomeValue && res.err != nil {
			vm.Heap.DecRef(id)
			return res
		}
		if res.outcome == callOutcomeFramePushed {
			vm.pendingByFrame[vm.top()] = &pendingWork{kind: pendingConstruct, acc: pyvalue.Ref(id)}
			return res
		}
		if res.value.Kind != pyvalue.KindUndefined {
			vm.Heap.DropValue(res.value)
		}
	} else {
		vm.Heap.DropValues(args)
	}
	return callResult{outcome: callOutcomeValue, value: pyvalue.Ref(id)}
}

// startCombinator installs the pendingWork for a map/filter/reduce
// AttrCallResult and dispatches its first call, matching spec.md §4.2's
// "the VM drives the remaining calls one at a time" contract.
func (vm *Interpreter) startCombinator(ac pyvalue.AttrCallResult, returnFrame *frame.Frame) callResult {
	switch ac.Kind {
	case pyvalue.ACMapCall:
		pw := &pendingWork{kind: pendingMap, callable: ac.Callable, items: ac.Items, returnFrame: returnFrame}
		return vm.stepCombinator(pw)
	case pyvalue.ACFilterCall:
		pw := &pendingWork{kind: pendingFilter, callable: ac.Callable, items: ac.Items, returnFrame: returnFrame}
		return vm.stepCombinator(pw)
	case pyvalue.ACReduceCall:
		pw := &pendingWork{kind: pendingReduce, callable: ac.ReduceFn, items: ac.Items, acc: ac.ReduceAcc, returnFrame: returnFrame}
		return vm.stepCombinator(pw)
	default:
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("unsupported combinator kind")}
	}
}

// stepCombinator kicks pw off: dispatches calls from pw.items starting at
// pw.idx until one pushes a real VM frame (in which case it registers pw
// under that frame and returns callOutcomeFramePushed) or every item has
// been consumed (in which case it materializes pw's final Value).
func (vm *Interpreter) stepCombinator(pw *pendingWork) callResult {
	for pw.idx < len(pw.items) {
		item := pw.items[pw.idx]
		pw.idx++

		res := vm.dispatchCombinatorCall(pw, item)
		if res.outcome == callOutcomeFramePushed {
			vm.pendingByFrame[vm.top()] = pw
			return res
		}
		if res.err != nil {
			return vm.abortCombinator(pw, res.err)
		}
		vm.consumeCombinatorResult(pw, item, res.value)
	}
	return vm.finishCombinator(pw)
}

func (vm *Interpreter) dispatchCombinatorCall(pw *pendingWork, item pyvalue.Value) callResult {
	switch pw.kind {
	case pendingMap:
		return vm.invoke(vm.Heap.CloneValue(pw.callable), []pyvalue.Value{item}, nil, 0, "")
	case pendingFilter:
		return vm.invoke(vm.Heap.CloneValue(pw.callable), []pyvalue.Value{vm.Heap.CloneValue(item)}, nil, 0, "")
	default: // pendingReduce
		return vm.invoke(vm.Heap.CloneValue(pw.callable), []pyvalue.Value{pw.acc, item}, nil, 0, "")
	}
}

func (vm *Interpreter) consumeCombinatorResult(pw *pendingWork, item, returned pyvalue.Value) {
	switch pw.kind {
	case pendingMap:
		pw.results = append(pw.results, returned)
	case pendingFilter:
		if vm.Heap.Bool(returned) {
			pw.results = append(pw.results, item)
		} else {
			vm.Heap.DropValue(item)
		}
		vm.Heap.DropValue(returned)
	case pendingReduce:
		vm.Heap.DropValue(pw.acc)
		pw.acc = returned
	}
}

func (vm *Interpreter) abortCombinator(pw *pendingWork, err *pyerr.RunError) callResult {
	vm.Heap.DropValues(pw.items[pw.idx:])
	if pw.kind == pendingReduce {
		vm.Heap.DropValue(pw.acc)
	} else {
		vm.Heap.DropValues(pw.results)
	}
	return callResult{outcome: callOutcomeValue, err: err}
}

func (vm *Interpreter) finishCombinator(pw *pendingWork) callResult {
	switch pw.kind {
	case pendingReduce, pendingConstruct:
		return callResult{outcome: callOutcomeValue, value: pw.acc}
	default:
		id, err := vm.Heap.Allocate(heap.NewList(pw.results))
		if err != nil {
			return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(err)}
		}
		return callResult{outcome: callOutcomeValue, value: pyvalue.Ref(id)}
	}
}

// resumeCombinator is invoked by the OpReturnValue handler once the
// frame pw was waiting on has produced its return value: it feeds that
// value through the same consume step stepCombinator's synchronous path
// uses, then keeps dispatching the remaining items.
func (vm *Interpreter) resumeCombinator(pw *pendingWork, returned pyvalue.Value) callResult {
	if pw.kind == pendingConstruct {
		vm.Heap.DropValue(returned)
		return vm.finishCombinator(pw)
	}
	item := pw.items[pw.idx-1]
	vm.consumeCombinatorResult(pw, item, returned)
	return vm.stepCombinator(pw)
}
