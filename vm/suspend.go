// suspend.go provides the sandbox-facing entry points for driving an
// Interpreter across a host boundary (spec.md §4.5, §6.1): Run executes
// until the interpreter has something to report, and Resume feeds a
// host-supplied external/os call result back in and keeps going.
package vm

import (
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// Run advances the interpreter until it completes, an uncaught exception
// escapes the root frame, or it suspends waiting on a host-supplied
// external/os call result. Step already loops over instructions to one
// of those three outcomes, so Run is a thin, package-external alias.
func (vm *Interpreter) Run() StepOutcome {
	return vm.Step()
}

// Start binds args/kwargs against entryFn's signature and pushes its
// frame as the root of the call stack, then runs it the way Run does.
// Argument-binding failures (spec.md §4.4's TypeError-shaped errors) are
// reported as an ordinary StopRaised outcome rather than a panic, since
// package sandbox treats "the script's entry point was called wrong" no
// differently from any other uncaught exception.
func (vm *Interpreter) Start(entryFn pyvalue.FunctionId, args []pyvalue.Value, kwargs []pyvalue.KwArg) StepOutcome {
	res := vm.invokeDefFunction(entryFn, args, kwargs, 0, "<module>")
	if res.err != nil {
		return StepOutcome{Reason: StopRaised, Err: res.err}
	}
	if res.outcome != callOutcomeFramePushed {
		return StepOutcome{Reason: StopCompleted, Result: res.value}
	}
	return vm.Step()
}

// Resume supplies the result of a previously suspended external/os call
// (vm.PendingExternal) and continues execution. When err is non-nil it
// is raised inside the suspended frame instead of a value being pushed,
// the way a host-reported failure surfaces as a Python exception.
func (vm *Interpreter) Resume(result pyvalue.Value, err *pyerr.RunError) StepOutcome {
	vm.PendingExternal = nil
	vm.PendingFutureIDs = nil
	if err != nil {
		outcome, done := vm.raise(err)
		if done {
			return outcome
		}
		return vm.Step()
	}
	vm.push(result)
	return vm.Step()
}

// FutureResult is a host's answer to one pending CallId: either the value
// the external future resolved to, or the exception it failed with
// (spec.md §4.5's ExternalResult, restricted to the two shapes a future
// resolution can take — no Future-of-a-Future chaining).
type FutureResult struct {
	Value pyvalue.Value
	Err   *pyerr.RunError
}

// ResumeFutures supplies every CallId vm.PendingFutureIDs listed and
// resumes execution (spec.md §4.5 FutureSnapshot::resume). results must
// cover exactly those ids; package sandbox is responsible for rejecting a
// call that is missing one or names a stranger before ResumeFutures ever
// runs, since that check is a Snapshot-shape concern, not a VM one.
//
// A bare `await external_future` (PendingFutureIDs has exactly one id and
// no gather() is involved) resolves through the ordinary Resume path: the
// result is pushed as the await expression's value. A gather() still
// holding unresolved ExternalFuture items instead writes each result into
// its GatherItem and resumes the FIFO drive.
func (vm *Interpreter) ResumeFutures(results map[pyvalue.CallId]FutureResult) StepOutcome {
	ids := vm.PendingFutureIDs
	vm.PendingFutureIDs = nil
	if vm.hasPendingGatherFuture {
		res := vm.resumeGatherFutures(results)
		outcome, done := vm.applyCallResult(res)
		if done {
			return outcome
		}
		return vm.Step()
	}
	if len(ids) != 1 {
		return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("ResumeFutures: expected exactly one pending id for a bare await")}
	}
	r, ok := results[ids[0]]
	if !ok {
		return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("ResumeFutures: missing result for pending call id")}
	}
	return vm.Resume(r.Value, r.Err)
}
