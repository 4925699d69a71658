package sandbox

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/vm"
)

// ErrInternMismatch is returned by Snapshot.Load/FutureSnapshot.Load when
// the bytes were produced against a Runner whose intern table was seeded
// differently (spec.md §9 open question; SPEC_FULL.md §12 resolves it to
// refuse rather than silently renumber StringId/BytesId/LongIntId).
var ErrInternMismatch = errors.New("sandbox: snapshot's intern seed does not match this runner")

// ErrDone is returned by Dump for a Snapshot/FutureSnapshot that already
// resumed (spec.md §4.5 "Snapshots carrying a Done sentinel refuse to
// dump").
var ErrDone = errors.New("sandbox: snapshot already resumed, nothing to dump")

// Snapshot is the serializable image of a VM suspended at a single
// ExternalCall/OsCall (spec.md §4.5). runner is not serialized: Dump/Load
// round-trip only the interpreter state, and a Runner (the compiled
// program) is supplied fresh by the caller on Load, the same way
// Functions/Classes are never re-serialized.
type Snapshot struct {
	runner   *Runner
	vm       *vm.Interpreter
	callID   pyvalue.CallId
	isOsCall bool
	done     bool
}

// CallID is the id the host must echo back via Run's ExternalResult.
func (s *Snapshot) CallID() pyvalue.CallId { return s.callID }

// Run resumes execution with the host's answer to the pending
// ExternalCall/OsCall (spec.md §4.5). A ResultFuture answer is only valid
// for an ExternalCall (not an OsCall): it pushes an ExternalFuture value
// carrying this Snapshot's call_id, exactly as if the call had
// synchronously returned a not-yet-resolved awaitable, so an `await` on
// it surfaces as ProgressResolveFutures the normal way.
func (s *Snapshot) Run(result ExternalResult, print vm.PrintWriter) (RunProgress, *Exception) {
	if s.done {
		return RunProgress{}, &Exception{RunKind: pyerr.KindInternal, Message: "snapshot already resumed"}
	}
	s.vm.Print = print
	s.vm.Heap.SetPrintSink(print)

	var outcome vm.StepOutcome
	switch result.Kind {
	case ResultFuture:
		if s.isOsCall {
			return RunProgress{}, &Exception{RunKind: pyerr.KindInternal, Message: "ResultFuture is not valid for an OsCall"}
		}
		outcome = s.vm.Resume(pyvalue.ExternalFuture(s.callID), nil)
	case ResultException:
		outcome = s.vm.Resume(pyvalue.Value{}, result.toRunError())
	default:
		outcome = s.vm.Resume(result.Value, nil)
	}
	s.done = true
	return s.runner.advance(s.vm, outcome)
}

// snapshotWire is Snapshot's gob wire form. Heap, Interns and Tracker are
// encoded alongside the Interpreter's control state rather than inside
// it, since Heap's GobDecode leaves Dict/PySet payloads with their hash
// index unbuilt until RebuildIndexes runs against the fully decoded Heap
// (heap/gob.go), which in turn needs Interns rebound first.
type snapshotWire struct {
	VM       *vm.Interpreter
	Heap     *heap.Heap
	CallID   pyvalue.CallId
	IsOsCall bool
}

// Dump serializes the suspended VM to bytes (spec.md §4.5 "a compact
// framed binary format"; this implementation uses encoding/gob, the
// stdlib's own answer to exactly this "expose otherwise-private state for
// serialization" problem — see DESIGN.md). The print callback and any
// dataclass registry are not part of the Interpreter/Heap payload and so
// are never serialized, matching the contract.
func (s *Snapshot) Dump() ([]byte, error) {
	if s.done {
		return nil, ErrDone
	}
	wire := snapshotWire{VM: s.vm, Heap: s.vm.Heap, CallID: s.callID, IsOsCall: s.isOsCall}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reconstructs a Snapshot from Dump's bytes against runner, which
// must be the same prepared program the snapshot was dumped from (its
// Functions/Classes/Interns are not part of the wire form). A runner
// whose Interns seed doesn't match the data's origin is rejected rather
// than silently renumbering ids.
func Load(data []byte, runner *Runner, print vm.PrintWriter) (*Snapshot, error) {
	var wire snapshotWire
	wire.VM = &vm.Interpreter{}
	wire.Heap = &heap.Heap{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return nil, err
	}
	interp, err := rehydrate(wire.VM, wire.Heap, runner, print)
	if err != nil {
		return nil, err
	}
	return &Snapshot{runner: runner, vm: interp, callID: wire.CallID, isOsCall: wire.IsOsCall}, nil
}

// rehydrate finishes a decoded Interpreter/Heap pair: checks the decoded
// intern table's seed against runner's (rejecting a mismatched runner
// rather than silently renumbering ids), rebinds Functions/Classes/Print
// from the live runner/print the caller supplies, rebinds the Heap's
// shared interns/tracker pointers, and drains every Dict/PySet's staged
// pairs now that a live Heap/Interns exist (heap/gob.go's two-phase
// decode). The decoded Interns table itself is kept, not replaced by
// runner.Interns: it carries whatever the script interned dynamically
// before suspending, which runner.Interns's static seed does not have.
func rehydrate(interp *vm.Interpreter, h *heap.Heap, runner *Runner, print vm.PrintWriter) (*vm.Interpreter, error) {
	if interp.Interns == nil || interp.Interns.Seed() != runner.Interns.Seed() {
		return nil, ErrInternMismatch
	}
	interp.Functions = runner.Functions
	interp.Classes = runner.Classes
	interp.Print = print
	h.SetInterns(interp.Interns)
	h.SetTracker(interp.Tracker)
	h.SetPrintSink(print)
	h.RebuildIndexes()
	interp.Heap = h
	return interp, nil
}
