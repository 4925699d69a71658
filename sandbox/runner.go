// Package sandbox implements spec.md §4.5/§6.1 (C4): the Runner entry
// point, the RunProgress state machine, and the serializable Snapshot/
// FutureSnapshot a host drives one external result at a time. Grounded on
// the teacher's cmd/hey + vm.VirtualMachine split (a prepared-program
// value the CLI loads once, reused across independent invocations), here
// generalized to a suspend/resume protocol the teacher has no equivalent
// of.
package sandbox

import (
	"fmt"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
	"github.com/wudi/heysb/tracker"
	"github.com/wudi/heysb/vm"
)

// Runner owns a single prepared program: compiled functions/classes, the
// intern table they were compiled against, the entry function, and the
// declared input/external-function names a host binding validates calls
// against (spec.md §4.5). A Runner is immutable once built and safe to
// reuse across any number of independent Run/Start calls: each call
// clones the intern seed and builds a fresh Heap, so no run observes
// another's dynamic state.
type Runner struct {
	ScriptName            string
	Source                string // optional, kept for tracebacks/REPL echoing
	EntryFunction         pyvalue.FunctionId
	InputNames            []string
	ExternalFunctionNames []string

	Functions map[pyvalue.FunctionId]*registry.Function
	Classes   map[uint32]*registry.Class
	Interns   *intern.Table
}

// New builds a Runner from already-prepared bytecode (spec.md §1: this
// repo's prepare boundary is a registry.Unit callers construct directly
// or via package asm; no parser ships).
func New(scriptName, source string, entry pyvalue.FunctionId, inputNames, externalFunctionNames []string, functions map[pyvalue.FunctionId]*registry.Function, classes map[uint32]*registry.Class, interns *intern.Table) *Runner {
	return &Runner{
		ScriptName:            scriptName,
		Source:                source,
		EntryFunction:         entry,
		InputNames:            inputNames,
		ExternalFunctionNames: externalFunctionNames,
		Functions:             functions,
		Classes:               classes,
		Interns:               interns,
	}
}

// newInterpreter builds a fresh Heap/Interns/Interpreter for one
// Run/Start invocation, binding inputs positionally against the entry
// function's signature.
func (r *Runner) newInterpreter(inputs []pyvalue.Value, tr tracker.Tracker, print vm.PrintWriter) *vm.Interpreter {
	interns := r.Interns.Clone()
	h := heap.New(tr, interns)
	return vm.New(h, interns, tr, print, r.Functions, r.Classes)
}

// Run is the one-shot entry (spec.md §4.5): no external functions and no
// futures may arise. An OsCall suspension raises NotImplementedError; an
// external FunctionCall or an awaited ExternalFuture raises RuntimeError,
// since both need a host driving Runner.Start/Snapshot.Run instead.
func (r *Runner) Run(inputs []pyvalue.Value, tr tracker.Tracker, print vm.PrintWriter) (pyvalue.Value, *Exception) {
	interp := r.newInterpreter(inputs, tr, print)
	outcome := interp.Start(r.EntryFunction, inputs, nil)
	return r.runResult(interp, outcome)
}

func (r *Runner) runResult(interp *vm.Interpreter, outcome vm.StepOutcome) (pyvalue.Value, *Exception) {
	switch outcome.Reason {
	case vm.StopCompleted:
		return outcome.Result, nil
	case vm.StopRaised:
		return pyvalue.Value{}, newException(outcome.Err)
	case vm.StopSuspendedExternal:
		if interp.PendingExternal.IsOsCall {
			return pyvalue.Value{}, &Exception{ExcKind: pyerr.NotImplementedErr, Message: fmt.Sprintf("os call %q is not supported by Runner.Run; use Runner.Start", interp.PendingExternal.Name)}
		}
		return pyvalue.Value{}, &Exception{ExcKind: pyerr.RuntimeError, Message: fmt.Sprintf("external function %q is not supported by Runner.Run; use Runner.Start", interp.PendingExternal.Name)}
	case vm.StopAwaitingFutures:
		return pyvalue.Value{}, &Exception{ExcKind: pyerr.RuntimeError, Message: "awaited external futures are not supported by Runner.Run; use Runner.Start"}
	default:
		return pyvalue.Value{}, &Exception{RunKind: pyerr.KindInternal, Message: "unexpected run outcome"}
	}
}

// Start is the suspendable entry (spec.md §4.5): it returns a RunProgress
// variant a host drives by feeding ExternalResult values back through the
// returned Snapshot/FutureSnapshot's Run/Resume.
func (r *Runner) Start(inputs []pyvalue.Value, tr tracker.Tracker, print vm.PrintWriter) (RunProgress, *Exception) {
	interp := r.newInterpreter(inputs, tr, print)
	outcome := interp.Start(r.EntryFunction, inputs, nil)
	return r.advance(interp, outcome)
}

// advance turns a StepOutcome into the RunProgress/Exception pair every
// entry point (Start, Snapshot.Run, FutureSnapshot.Resume) returns.
func (r *Runner) advance(interp *vm.Interpreter, outcome vm.StepOutcome) (RunProgress, *Exception) {
	switch outcome.Reason {
	case vm.StopRaised:
		return RunProgress{}, newException(outcome.Err)
	case vm.StopCompleted:
		return RunProgress{Kind: ProgressComplete, Result: outcome.Result}, nil
	case vm.StopSuspendedExternal:
		pe := interp.PendingExternal
		snap := &Snapshot{runner: r, vm: interp, callID: pe.CallID, isOsCall: pe.IsOsCall}
		kind := ProgressFunctionCall
		if pe.IsOsCall {
			kind = ProgressOsCall
		}
		return RunProgress{
			Kind:   kind,
			Name:   pe.Name,
			Args:   pe.Args,
			Kwargs: pe.Kwargs,
			CallID: pe.CallID,
			State:  snap,
		}, nil
	case vm.StopAwaitingFutures:
		ids := append([]pyvalue.CallId(nil), interp.PendingFutureIDs...)
		fs := &FutureSnapshot{runner: r, vm: interp, callIDs: ids}
		return RunProgress{Kind: ProgressResolveFutures, Futures: fs}, nil
	default:
		return RunProgress{}, &Exception{RunKind: pyerr.KindInternal, Message: "unexpected run outcome"}
	}
}
