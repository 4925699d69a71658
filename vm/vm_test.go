package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/heysb/asm"
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
	"github.com/wudi/heysb/tracker"
)

// discardPrint satisfies PrintWriter without pulling in package iowriter,
// which itself imports vm (and would create an import cycle from a test
// file in this package).
type discardPrint struct{}

func (discardPrint) StdoutWrite(string) {}
func (discardPrint) StdoutPush(rune)    {}

func newTestInterp(tr tracker.Tracker, functions map[pyvalue.FunctionId]*registry.Function) *Interpreter {
	h := heap.New(tr, intern.New())
	return New(h, h.Interns(), tr, discardPrint{}, functions, map[uint32]*registry.Class{})
}

// buildFib assembles def f(n): return n if n < 2 else f(n-1) + f(n-2),
// recursively calling itself via a bare DefFunction constant (spec.md
// §4.3's OpCall over a [callee, args...] stack shape).
func buildFib(id pyvalue.FunctionId) *registry.Function {
	b := asm.NewBuilder("f", "fib_test").Param("n", registry.ParamPositionalOrKeyword, 0).Locals(1)
	cTwo := b.Const(pyvalue.Int(2))
	cOne := b.Const(pyvalue.Int(1))
	cFn := b.Const(pyvalue.DefFunction(id))

	b.Emit(opcodes.OpLoadLocal, 0, 0, 1)
	b.Emit(opcodes.OpLoadConst, cTwo, 0, 1)
	b.Emit(opcodes.OpLt, 0, 0, 1)
	jumpToElse := b.Emit(opcodes.OpJumpIfFalse, 0, 0, 1)

	b.Emit(opcodes.OpLoadLocal, 0, 0, 2)
	b.Emit(opcodes.OpReturnValue, 0, 0, 2)

	elseStart := b.Here()
	b.Emit(opcodes.OpLoadConst, cFn, 0, 3)
	b.Emit(opcodes.OpLoadLocal, 0, 0, 3)
	b.Emit(opcodes.OpLoadConst, cOne, 0, 3)
	b.Emit(opcodes.OpSub, 0, 0, 3)
	b.Emit(opcodes.OpCall, 1, 0, 3)

	b.Emit(opcodes.OpLoadConst, cFn, 0, 3)
	b.Emit(opcodes.OpLoadLocal, 0, 0, 3)
	b.Emit(opcodes.OpLoadConst, cTwo, 0, 3)
	b.Emit(opcodes.OpSub, 0, 0, 3)
	b.Emit(opcodes.OpCall, 1, 0, 3)

	b.Emit(opcodes.OpAdd, 0, 0, 3)
	b.Emit(opcodes.OpReturnValue, 0, 0, 3)

	b.Patch(jumpToElse, elseStart)
	return b.Build(id)
}

// TestFibRecursion is spec.md §8 scenario S1: fib(10) == 55, driven
// through real recursive OpCall dispatch rather than a single straight-
// line body.
func TestFibRecursion(t *testing.T) {
	const fnID = pyvalue.FunctionId(1)
	fn := buildFib(fnID)
	vmi := newTestInterp(tracker.NoLimit(), map[pyvalue.FunctionId]*registry.Function{fnID: fn})

	outcome := vmi.Start(fnID, []pyvalue.Value{pyvalue.Int(10)}, nil)
	require.Equal(t, StopCompleted, outcome.Reason)
	assert.Equal(t, pyvalue.Int(55), outcome.Result)
}

// TestResourceLimitInstructionsUncatchable is spec.md §8 invariant #7: a
// tight infinite loop run under a tiny instruction budget produces an
// uncatchable ResourceError rather than running forever.
func TestResourceLimitInstructionsUncatchable(t *testing.T) {
	const fnID = pyvalue.FunctionId(1)
	b := asm.NewBuilder("loop", "limit_test").Locals(0)
	cNone := b.Const(pyvalue.None)
	loopHead := b.Here()
	b.Emit(opcodes.OpLoadConst, cNone, 0, 1)
	b.Emit(opcodes.OpPop, 0, 0, 1)
	b.Emit(opcodes.OpJump, loopHead, 0, 1)
	fn := b.Build(fnID)

	tr := tracker.NewLimited(1<<30, 5, 100)
	vmi := newTestInterp(tr, map[pyvalue.FunctionId]*registry.Function{fnID: fn})

	outcome := vmi.Start(fnID, nil, nil)
	require.Equal(t, StopRaised, outcome.Reason)
	require.NotNil(t, outcome.Err)
	assert.False(t, outcome.Err.Catchable())
	assert.Equal(t, pyerr.MemoryError, outcome.Err.Raise.Exc.Kind)
}

// newExcInstance builds a raisable exception instance directly on the
// heap, bypassing OpBuildClass/OpRaise's compiled path the way
// invokeClassConstructor does (h.IncRef on the class Ref before
// allocating the instance is required; Allocate does not itself bump
// nested-Ref refcounts).
func newExcInstance(h *heap.Heap, className string, uid uint32) pyvalue.Value {
	clsID, err := h.Allocate(heap.NewClassObject(className, uid))
	if err != nil {
		panic(err)
	}
	h.IncRef(clsID)
	instID, err := h.Allocate(heap.NewInstance(pyvalue.Ref(clsID)))
	if err != nil {
		panic(err)
	}
	return pyvalue.Ref(instID)
}

// TestRaiseInsideHandlerChainsContext exercises raiseWithContext directly:
// a raise while vm.handledException is set must chain the prior exception
// as __context__ (spec.md §3.5/§4.3/§7).
func TestRaiseInsideHandlerChainsContext(t *testing.T) {
	vmi := newTestInterp(tracker.NoLimit(), nil)
	fn := asm.NewBuilder("f", "ctx_test").Locals(0).Build(pyvalue.FunctionId(1))
	require.NoError(t, vmi.PushFrame(frame.New(fn, 0, 0)))

	vmi.handledException = &pyerr.ExceptionRaise{Exc: pyerr.New(pyerr.TypeError, "previous")}

	v := newExcInstance(vmi.Heap, "ValueError", 1)
	vmi.push(v)

	outcome, done := vmi.execRaise()
	require.True(t, done)
	require.Equal(t, StopRaised, outcome.Reason)
	require.NotNil(t, outcome.Err.Raise)
	assert.Equal(t, pyerr.ValueError, outcome.Err.Raise.Exc.Kind)
	require.NotNil(t, outcome.Err.Raise.Exc.Context)
	assert.Equal(t, pyerr.TypeError, outcome.Err.Raise.Exc.Context.Kind)
}

// TestRaiseFromSetsCauseAndSuppressesContext exercises `raise X from Y`
// (spec.md §3.5/§7): execRaiseFrom pops the cause first, then X, and sets
// __cause__/suppress_context on the resulting error.
func TestRaiseFromSetsCauseAndSuppressesContext(t *testing.T) {
	vmi := newTestInterp(tracker.NoLimit(), nil)
	fn := asm.NewBuilder("f", "ctx_test").Locals(0).Build(pyvalue.FunctionId(1))
	require.NoError(t, vmi.PushFrame(frame.New(fn, 0, 0)))

	x := newExcInstance(vmi.Heap, "ValueError", 1)
	cause := newExcInstance(vmi.Heap, "KeyError", 2)
	vmi.push(x)
	vmi.push(cause)

	outcome, done := vmi.execRaiseFrom()
	require.True(t, done)
	require.Equal(t, StopRaised, outcome.Reason)
	assert.Equal(t, pyerr.ValueError, outcome.Err.Raise.Exc.Kind)
	assert.True(t, outcome.Err.Raise.Exc.SuppressContext)
	require.NotNil(t, outcome.Err.Raise.Exc.Cause)
	assert.Equal(t, pyerr.KeyError, outcome.Err.Raise.Exc.Cause.Kind)
}

// TestPushPopExceptHandlerNesting drives execPushExceptHandler/
// execPopExceptHandler across two nested handler levels, confirming the
// save/restore stack discipline spec.md §4.3 describes.
func TestPushPopExceptHandlerNesting(t *testing.T) {
	vmi := newTestInterp(tracker.NoLimit(), nil)

	outer := &pyerr.ExceptionRaise{Exc: pyerr.New(pyerr.ValueError, "outer")}
	inner := &pyerr.ExceptionRaise{Exc: pyerr.New(pyerr.KeyError, "inner")}

	require.Nil(t, vmi.handledException)

	vmi.pendingExceptionContext = outer
	_, _ = vmi.execPushExceptHandler()
	assert.Same(t, outer, vmi.handledException)
	require.Len(t, vmi.exceptionStack, 1)
	assert.Nil(t, vmi.exceptionStack[0])

	vmi.pendingExceptionContext = inner
	_, _ = vmi.execPushExceptHandler()
	assert.Same(t, inner, vmi.handledException)
	require.Len(t, vmi.exceptionStack, 2)
	assert.Same(t, outer, vmi.exceptionStack[1])

	_, _ = vmi.execPopExceptHandler()
	assert.Same(t, outer, vmi.handledException)
	require.Len(t, vmi.exceptionStack, 1)

	_, _ = vmi.execPopExceptHandler()
	assert.Nil(t, vmi.handledException)
	assert.Len(t, vmi.exceptionStack, 0)
}

// TestGeneratorPEP479RaisesRuntimeError is spec.md §8 invariant #5 /
// scenario S4: a StopIteration raised from inside a generator body (as
// opposed to falling off the end) must surface to the consumer as
// RuntimeError, not as ordinary exhaustion. This exercises the
// dispatch.go raise() fix directly, since the generator frame must sit
// beneath a caller frame for the pendingByFrame interception to run at
// all (a lone root generator frame stops unwinding before ever popping).
func TestGeneratorPEP479RaisesRuntimeError(t *testing.T) {
	vmi := newTestInterp(tracker.NoLimit(), nil)

	callerFn := asm.NewBuilder("caller", "pep479_test").Locals(0).Build(pyvalue.FunctionId(1))
	require.NoError(t, vmi.PushFrame(frame.New(callerFn, 0, 0)))

	gb := asm.NewBuilder("g", "pep479_test").Generator().Locals(0)
	stopIter := newExcInstance(vmi.Heap, "StopIteration", 2)
	cStop := gb.Const(stopIter)
	gb.Emit(opcodes.OpLoadConst, cStop, 0, 1)
	gb.Emit(opcodes.OpRaise, 0, 0, 1)
	genFn := gb.Build(pyvalue.FunctionId(2))

	gen := heap.NewGenerator(frame.New(genFn, 0, 0), false)
	genID, err := vmi.Heap.Allocate(gen)
	require.NoError(t, err)

	res := vmi.advanceGenerator(genID, pyvalue.Undefined, false, pendingGeneratorAdvance)
	require.Equal(t, callOutcomeFramePushed, res.outcome)

	outcome := vmi.Step()
	require.Equal(t, StopRaised, outcome.Reason)
	require.NotNil(t, outcome.Err.Raise)
	assert.Equal(t, pyerr.RuntimeError, outcome.Err.Raise.Exc.Kind)
	assert.Contains(t, outcome.Err.Raise.Exc.Message, "generator raised StopIteration")
	assert.Equal(t, heap.GenExhausted, gen.State)
}

// TestGobRoundTripPreservesExceptionContextState is a narrow slice of
// spec.md §8 invariant #4 (snapshot round-trip): the exception-context-
// chaining fields added for this review must survive GobEncode/GobDecode
// like every other piece of Interpreter control state.
func TestGobRoundTripPreservesExceptionContextState(t *testing.T) {
	vmi := newTestInterp(tracker.NoLimit(), nil)
	vmi.handledException = &pyerr.ExceptionRaise{Exc: pyerr.New(pyerr.ValueError, "active")}
	vmi.exceptionStack = []*pyerr.ExceptionRaise{nil, {Exc: pyerr.New(pyerr.KeyError, "saved")}}
	vmi.pendingExceptionContext = &pyerr.ExceptionRaise{Exc: pyerr.New(pyerr.TypeError, "pending")}

	data, err := vmi.GobEncode()
	require.NoError(t, err)

	decoded := &Interpreter{}
	require.NoError(t, decoded.GobDecode(data))

	require.NotNil(t, decoded.handledException)
	assert.Equal(t, pyerr.ValueError, decoded.handledException.Exc.Kind)

	require.Len(t, decoded.exceptionStack, 2)
	assert.Nil(t, decoded.exceptionStack[0])
	require.NotNil(t, decoded.exceptionStack[1])
	assert.Equal(t, pyerr.KeyError, decoded.exceptionStack[1].Exc.Kind)

	require.NotNil(t, decoded.pendingExceptionContext)
	assert.Equal(t, pyerr.TypeError, decoded.pendingExceptionContext.Exc.Kind)
}
