package sandbox

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/vm"
)

// FutureSnapshot is the serializable image of a VM suspended awaiting one
// or more ExternalFuture ids (spec.md §4.5), arising from a bare `await`
// on a single future or from `asyncio.gather` still holding unresolved
// ones.
type FutureSnapshot struct {
	runner  *Runner
	vm      *vm.Interpreter
	callIDs []pyvalue.CallId
	done    bool
}

// PendingCallIDs lists every id Resume must be given a result for, no
// more and no fewer (spec.md §4.5).
func (fs *FutureSnapshot) PendingCallIDs() []pyvalue.CallId {
	return append([]pyvalue.CallId(nil), fs.callIDs...)
}

// Resume supplies a result for every pending id and resumes the
// gather/await loop (spec.md §4.5's FutureSnapshot::resume). results must
// cover exactly fs.PendingCallIDs(): a missing id or an id that was never
// pending is rejected as an Internal error rather than silently ignored
// or guessed at, matching "no duplicates, no strangers".
func (fs *FutureSnapshot) Resume(results map[pyvalue.CallId]ExternalResult, print vm.PrintWriter) (RunProgress, *Exception) {
	if fs.done {
		return RunProgress{}, &Exception{RunKind: pyerr.KindInternal, Message: "future snapshot already resumed"}
	}
	if err := fs.validate(results); err != nil {
		return RunProgress{}, err
	}
	fs.vm.Print = print
	fs.vm.Heap.SetPrintSink(print)

	vmResults := make(map[pyvalue.CallId]vm.FutureResult, len(results))
	for id, r := range results {
		if r.Kind == ResultException {
			vmResults[id] = vm.FutureResult{Err: r.toRunError()}
		} else {
			vmResults[id] = vm.FutureResult{Value: r.Value}
		}
	}
	outcome := fs.vm.ResumeFutures(vmResults)
	fs.done = true
	return fs.runner.advance(fs.vm, outcome)
}

func (fs *FutureSnapshot) validate(results map[pyvalue.CallId]ExternalResult) *Exception {
	if len(results) != len(fs.callIDs) {
		return &Exception{RunKind: pyerr.KindInternal, Message: fmt.Sprintf("expected exactly %d results, got %d", len(fs.callIDs), len(results))}
	}
	for _, id := range fs.callIDs {
		r, ok := results[id]
		if !ok {
			return &Exception{RunKind: pyerr.KindInternal, Message: fmt.Sprintf("missing result for pending call id %d", id)}
		}
		if r.Kind == ResultFuture {
			return &Exception{RunKind: pyerr.KindInternal, Message: "ResultFuture is not valid for FutureSnapshot.Resume"}
		}
	}
	return nil
}

type futureSnapshotWire struct {
	VM      *vm.Interpreter
	Heap    *heap.Heap
	CallIDs []pyvalue.CallId
}

// Dump mirrors Snapshot.Dump (spec.md §4.5).
func (fs *FutureSnapshot) Dump() ([]byte, error) {
	if fs.done {
		return nil, ErrDone
	}
	wire := futureSnapshotWire{VM: fs.vm, Heap: fs.vm.Heap, CallIDs: fs.callIDs}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadFutureSnapshot mirrors Load (spec.md §4.5): runner must be the same
// prepared program the snapshot was dumped from.
func LoadFutureSnapshot(data []byte, runner *Runner, print vm.PrintWriter) (*FutureSnapshot, error) {
	var wire futureSnapshotWire
	wire.VM = &vm.Interpreter{}
	wire.Heap = &heap.Heap{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return nil, err
	}
	interp, err := rehydrate(wire.VM, wire.Heap, runner, print)
	if err != nil {
		return nil, err
	}
	return &FutureSnapshot{runner: runner, vm: interp, callIDs: wire.CallIDs}, nil
}
