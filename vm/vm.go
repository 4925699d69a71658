// Package vm implements the bytecode interpreter described by spec.md
// §4.3 (C2): the frame stack over a shared operand stack, opcode
// dispatch, exception-table unwinding, generator/coroutine control and
// the asyncio.gather scheduler. Grounded on the teacher's
// vm.VirtualMachine (DebugLevel-gated diagnostics, a mutex-guarded
// top-level struct, a linear opcode switch) generalized from its
// register-machine PHP instruction set to opcodes' Python-shaped
// stack-machine set.
package vm

import (
	"sync"

	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
	"github.com/wudi/heysb/tracker"
)

// DebugLevel controls the verbosity of runtime diagnostics the
// Interpreter collects, mirroring the teacher's DebugLevel gate around
// vm.VirtualMachine's profiling hooks.
type DebugLevel int

const (
	DebugLevelNone DebugLevel = iota
	DebugLevelBasic
	DebugLevelDetailed
)

// PrintWriter is spec.md §4.5/§6.4's print-writer contract: a sink for
// print() that never blocks and never reenters the VM.
type PrintWriter interface {
	StdoutWrite(s string)
	StdoutPush(r rune)
}

// Interpreter is the running VM instance: a frame stack over a shared
// operand stack, plus every piece of state a Snapshot must capture
// verbatim to resume elsewhere (package sandbox wraps exactly this
// struct as its Snapshot/FutureSnapshot payload).
type Interpreter struct {
	mu sync.Mutex

	DebugLevel DebugLevel

	Heap    *heap.Heap
	Interns *intern.Table
	Tracker tracker.Tracker
	Print   PrintWriter

	Functions map[pyvalue.FunctionId]*registry.Function

	// Classes is keyed by the compiled class's UID (assigned at prepare
	// time, distinct from the runtime ClassObject.UID the VM mints for
	// isinstance checks) so OpBuildClass can find its bases/namespace
	// template without re-parsing source.
	Classes map[uint32]*registry.Class

	Frames []*frame.Frame
	Stack  []pyvalue.Value

	// pendingByFrame carries combinator/constructor continuations keyed
	// by the callee frame whose return value they must intercept
	// instead of letting it fall through to the default "push onto the
	// new top frame's stack" behavior (spec.md §4.2's AttrCallResult
	// variants that drive more than one call).
	pendingByFrame map[*frame.Frame]*pendingWork

	// pendingGetattr tracks, per live frame, whether a __getattribute__
	// AttributeError should fall back to __getattr__ (spec.md §9
	// "attribute lookup loops").
	pendingGetattrFallback []bool

	nextCallID    uint32
	nextClassUID  uint32
	nextTaskID    uint32

	// handledException is the currently-active except-block exception:
	// execRaise/execRaiseFrom consult it to set a freshly raised
	// exception's __context__, and execReraise/execEndFinally consult it
	// for a bare `raise`/propagating `finally` (spec.md §3.5/§4.3/§7
	// "exception context chaining"). It is maintained as a stack via
	// OpPushExceptHandler/OpPopExceptHandler rather than a single flat
	// value, so a nested try/except inside a handler restores the outer
	// exception's context once the inner one's handler body finishes.
	handledException *pyerr.ExceptionRaise
	exceptionStack   []*pyerr.ExceptionRaise

	// pendingExceptionContext is the exception raise() just dispatched
	// into a handler, waiting for that handler body's OpPushExceptHandler
	// (its first instruction) to claim it as the new handledException.
	// It is never observed across more than one dispatch step in
	// practice, but travels with a Snapshot anyway since nothing
	// guarantees a host can't suspend at that exact boundary.
	pendingExceptionContext *pyerr.ExceptionRaise

	// PendingExternal carries an ACExternalCall/ACOsCall's name/args
	// across the Run() boundary once callOutcomeSuspend is reported, so
	// package sandbox can build the matching RunProgress variant.
	PendingExternal *PendingExternalCall

	// PendingFutureIDs carries every CallId a StopAwaitingFutures outcome
	// needs resolved before ResumeFutures can continue (spec.md §4.5).
	PendingFutureIDs []pyvalue.CallId

	// pendingGatherFuture is the GatherFuture startGather suspended on
	// when it found unresolved ExternalFuture items. hasPendingGather is
	// false for a bare `await external_future` (resolved through the
	// plain Resume path instead), since HeapId(0) is itself a valid
	// first-allocation id and can't serve as its own "none" sentinel.
	pendingGatherFuture    pyvalue.HeapId
	hasPendingGatherFuture bool
}

// PendingExternalCall is the suspended call site a Snapshot must resume
// against once the host supplies its result (spec.md §4.5/§6.1).
type PendingExternalCall struct {
	IsOsCall bool
	Name     string
	Args     []pyvalue.Value
	Kwargs   []pyvalue.KwArg
	CallID   pyvalue.CallId
}

// New constructs an Interpreter ready to run fn as its entry point, with
// args already placed as fn's bound locals (package sandbox performs the
// signature bind before calling New, since Runner.run/start both need to
// report bind errors as a plain Exception rather than a VM suspension).
func New(h *heap.Heap, interns *intern.Table, tr tracker.Tracker, print PrintWriter, functions map[pyvalue.FunctionId]*registry.Function, classes map[uint32]*registry.Class) *Interpreter {
	h.SetPrintSink(print)
	return &Interpreter{
		Heap:           h,
		Interns:        interns,
		Tracker:        tr,
		Print:          print,
		Functions:      functions,
		Classes:        classes,
		pendingByFrame: make(map[*frame.Frame]*pendingWork),
	}
}

// PushFrame pushes fr onto the frame stack, charging the tracker for
// recursion depth (spec.md §4.3 "instruction budget").
func (vm *Interpreter) PushFrame(fr *frame.Frame) error {
	if err := vm.Tracker.OnFramePush(); err != nil {
		return err
	}
	vm.Frames = append(vm.Frames, fr)
	return nil
}

// PopFrame removes the top frame, giving back its tracker frame-depth
// budget, and returns it.
func (vm *Interpreter) PopFrame() *frame.Frame {
	n := len(vm.Frames)
	fr := vm.Frames[n-1]
	vm.Frames = vm.Frames[:n-1]
	if n-1 < len(vm.pendingGetattrFallback) {
		vm.pendingGetattrFallback = vm.pendingGetattrFallback[:n-1]
	}
	vm.Tracker.OnFramePop()
	return fr
}

func (vm *Interpreter) top() *frame.Frame { return vm.Frames[len(vm.Frames)-1] }

func (vm *Interpreter) push(v pyvalue.Value) { vm.Stack = append(vm.Stack, v) }

func (vm *Interpreter) pop() pyvalue.Value {
	n := len(vm.Stack)
	v := vm.Stack[n-1]
	vm.Stack = vm.Stack[:n-1]
	return v
}

func (vm *Interpreter) popN(n int) []pyvalue.Value {
	out := make([]pyvalue.Value, n)
	copy(out, vm.Stack[len(vm.Stack)-n:])
	vm.Stack = vm.Stack[:len(vm.Stack)-n]
	return out
}

func (vm *Interpreter) peek() pyvalue.Value { return vm.Stack[len(vm.Stack)-1] }

func (vm *Interpreter) allocClassUID() uint32 {
	vm.nextClassUID++
	return vm.nextClassUID
}

// allocCallID mints a fresh CallId starting at 1, reserving 0 to mean "no
// call id" (heap.GatherItem's zero value relies on this to tell a
// not-yet-pending slot apart from a real pending ExternalFuture).
func (vm *Interpreter) allocCallID() pyvalue.CallId {
	vm.nextCallID++
	return pyvalue.CallId(vm.nextCallID)
}

func (vm *Interpreter) allocTaskID() uint32 {
	vm.nextTaskID++
	return vm.nextTaskID
}

// moduleFrame is the bottom of the frame stack, serving as spec.md
// §3.4's Global scope storage.
func (vm *Interpreter) moduleFrame() *frame.Frame { return vm.Frames[0] }
