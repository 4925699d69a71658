package vm

import (
	"bytes"
	"encoding/gob"

	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/tracker"
)

// interpreterSnapshot mirrors Interpreter's fields under exported names so
// package sandbox can gob-encode the whole VM despite most of its state
// being deliberately unexported to the rest of this codebase. Heap and
// Print/Functions/Classes travel separately: Heap has its own
// GobEncode/GobDecode, and Print/Functions/Classes are re-supplied by
// package sandbox on load rather than round-tripped (spec.md §4.5 —
// Functions/Classes are the compiled program, identical on every load of
// the same Runner; Print is the live host callback). Tracker and Interns
// travel here: spec.md §4.5 lists "resource tracker" among the state a
// resume must reconstruct exactly, and any string/bytes/bigint a running
// script interned dynamically before suspending only exists in this
// table, not in the Runner's static seed.
type interpreterSnapshot struct {
	DebugLevel DebugLevel

	Tracker tracker.Tracker
	Interns *intern.Table

	Frames []*frame.Frame
	Stack  []pyvalue.Value

	Pending                []PendingEntry
	PendingGetattrFallback []bool

	NextCallID   uint32
	NextClassUID uint32
	NextTaskID   uint32

	HandledException        *pyerr.ExceptionRaise
	ExceptionStack          []*pyerr.ExceptionRaise
	PendingExceptionContext *pyerr.ExceptionRaise

	PendingExternal        *PendingExternalCall
	PendingFutureIDs       []pyvalue.CallId
	PendingGatherFuture    pyvalue.HeapId
	HasPendingGatherFuture bool
}

// GobEncode lets a Snapshot serialize an Interpreter's control state
// (frame stack, operand stack, pending combinators, suspension markers,
// resource tracker, intern table). Heap is encoded separately by package
// sandbox, which owns the order fields must be decoded in (Heap's
// Dict/PySet payloads need the decoded Interns table rebound before
// RebuildIndexes can run).
func (vm *Interpreter) GobEncode() ([]byte, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	snap := interpreterSnapshot{
		DebugLevel:              vm.DebugLevel,
		Tracker:                 vm.Tracker,
		Interns:                 vm.Interns,
		Frames:                  vm.Frames,
		Stack:                   vm.Stack,
		Pending:                 vm.ExportPending(),
		PendingGetattrFallback:  vm.pendingGetattrFallback,
		NextCallID:              vm.nextCallID,
		NextClassUID:            vm.nextClassUID,
		NextTaskID:              vm.nextTaskID,
		HandledException:        vm.handledException,
		ExceptionStack:          vm.exceptionStack,
		PendingExceptionContext: vm.pendingExceptionContext,
		PendingExternal:         vm.PendingExternal,
		PendingFutureIDs:        vm.PendingFutureIDs,
		PendingGatherFuture:     vm.pendingGatherFuture,
		HasPendingGatherFuture:  vm.hasPendingGatherFuture,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode rebuilds an Interpreter's control state from GobEncode's wire
// form, including the Interns table it was suspended with. Heap/Print/
// Functions/Classes are left untouched; package sandbox's Snapshot.Load
// sets those fields itself before the Interpreter is usable, and compares
// the decoded Interns' seed against the Runner's before accepting it.
func (vm *Interpreter) GobDecode(data []byte) error {
	var snap interpreterSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	vm.DebugLevel = snap.DebugLevel
	vm.Tracker = snap.Tracker
	vm.Interns = snap.Interns
	vm.Frames = snap.Frames
	vm.Stack = snap.Stack
	vm.pendingGetattrFallback = snap.PendingGetattrFallback
	vm.nextCallID = snap.NextCallID
	vm.nextClassUID = snap.NextClassUID
	vm.nextTaskID = snap.NextTaskID
	vm.handledException = snap.HandledException
	vm.exceptionStack = snap.ExceptionStack
	vm.pendingExceptionContext = snap.PendingExceptionContext
	vm.PendingExternal = snap.PendingExternal
	vm.PendingFutureIDs = snap.PendingFutureIDs
	vm.pendingGatherFuture = snap.PendingGatherFuture
	vm.hasPendingGatherFuture = snap.HasPendingGatherFuture
	vm.ImportPending(snap.Pending)
	return nil
}
