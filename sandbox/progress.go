package sandbox

import (
	"fmt"

	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// ProgressKind discriminates the four shapes RunProgress can take
// (spec.md §4.5's RunProgress variants). Go has no tagged union, so
// RunProgress carries every variant's fields and Kind says which are
// meaningful, the same pattern vm.StepOutcome already uses for
// StopReason.
type ProgressKind int

const (
	ProgressComplete ProgressKind = iota
	ProgressFunctionCall
	ProgressOsCall
	ProgressResolveFutures
)

// RunProgress is what Runner.Start/Snapshot.Run/FutureSnapshot.Resume
// return: either a final Result, a suspended call a host must answer via
// State, or a batch of futures a host must answer via Futures.
type RunProgress struct {
	Kind ProgressKind

	// Result is meaningful for ProgressComplete.
	Result pyvalue.Value

	// Name/Args/Kwargs/CallID/State are meaningful for ProgressFunctionCall
	// and ProgressOsCall.
	Name   string
	Args   []pyvalue.Value
	Kwargs []pyvalue.KwArg
	CallID pyvalue.CallId
	State  *Snapshot

	// Futures is meaningful for ProgressResolveFutures.
	Futures *FutureSnapshot
}

// ResultKind discriminates ExternalResult's three shapes (spec.md §4.5).
type ResultKind int

const (
	ResultValue ResultKind = iota
	ResultException
	ResultFuture
)

// ExternalResult is a host's answer to one suspended ExternalCall/OsCall
// (spec.md §4.5). Only Snapshot.Run accepts ResultFuture; it means "the
// host started an async operation whose id is the call_id", and that id
// later resolves through FutureSnapshot instead.
type ExternalResult struct {
	Kind  ResultKind
	Value pyvalue.Value
	Exc   *pyerr.SimpleException
}

// Value wraps a plain returned value (spec.md §4.5 "as if the external
// call returned v").
func Value(v pyvalue.Value) ExternalResult { return ExternalResult{Kind: ResultValue, Value: v} }

// ExceptionResult wraps a host-raised exception (spec.md §4.5 "as if it
// raised e").
func ExceptionResult(kind pyerr.ExcType, message string) ExternalResult {
	return ExternalResult{Kind: ResultException, Exc: &pyerr.SimpleException{Kind: kind, Message: message}}
}

// Future marks an ExternalCall as having started an async operation
// (spec.md §4.5); valid only for Snapshot.Run, never for
// FutureSnapshot.Resume.
func Future() ExternalResult { return ExternalResult{Kind: ResultFuture} }

func (r ExternalResult) toRunError() *pyerr.RunError {
	if r.Kind != ResultException || r.Exc == nil {
		return nil
	}
	return pyerr.Exc(r.Exc.Kind, "%s", r.Exc.Message)
}

// Exception is the public, catchable-or-not failure shape every entry
// point surfaces once a run ends without completing (spec.md §7's
// Exc/UncatchableExc/Internal kinds, flattened to whatever a host binding
// needs: a kind tag and a message, plus the traceback if one was built).
type Exception struct {
	RunKind pyerr.RunErrorKind
	ExcKind pyerr.ExcType
	Message string
	Trace   []pyerr.StackLocation
}

func (e *Exception) Error() string {
	if e.ExcKind != "" {
		return fmt.Sprintf("%s: %s", e.ExcKind, e.Message)
	}
	return e.Message
}

// newException flattens a *pyerr.RunError (spec.md §7's three kinds) into
// the host-facing Exception shape; nil in, nil out.
func newException(err *pyerr.RunError) *Exception {
	if err == nil {
		return nil
	}
	exc := &Exception{RunKind: err.Kind, Message: err.Internal}
	if err.Raise != nil && err.Raise.Exc != nil {
		exc.ExcKind = err.Raise.Exc.Kind
		exc.Message = err.Raise.Exc.Message
		exc.Trace = err.Raise.Trace
	}
	return exc
}
