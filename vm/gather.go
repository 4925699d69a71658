package vm

import (
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// startGather drives a GatherFuture's pending coroutine items to
// completion one at a time, in Items order — a FIFO schedule rather
// than true interleaved concurrency, since the VM advances exactly one
// frame stack at a time (spec.md §4.3 "asyncio.gather and tasks"; see
// DESIGN.md for the scope this simplification leaves out, notably that
// an exception inside one task does not cancel its not-yet-started
// siblings).
func (vm *Interpreter) startGather(futureRef pyvalue.HeapId) callResult {
	gf, ok := vm.Heap.Get(futureRef).(*heap.GatherFuture)
	if !ok {
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("expected a gather future")}
	}

	idx := -1
	for i := range gf.Items {
		if !gf.Items[i].Done && !gf.Items[i].Cancelled && gf.Items[i].Gen.Kind == pyvalue.KindRef {
			idx = i
			break
		}
	}
	if idx == -1 {
		if ids := pendingExternalFutureIDs(gf); len(ids) > 0 {
			vm.pendingGatherFuture = futureRef
			vm.hasPendingGatherFuture = true
			vm.Heap.IncRef(futureRef)
			return callResult{outcome: callOutcomeAwaitFutures, futureIDs: ids}
		}
		return vm.finishGather(futureRef)
	}

	genRef := gf.Items[idx].Gen.Ref
	res := vm.advanceGenerator(genRef, pyvalue.Undefined, false, pendingGather)
	if res.outcome == callOutcomeFramePushed {
		pw := vm.pendingByFrame[vm.top()]
		vm.Heap.IncRef(futureRef)
		pw.gatherFuture = pyvalue.Ref(futureRef)
		pw.idx = idx
	}
	return res
}

// completeGatherItem is called by execReturn when a pendingGather frame
// falls off the end: it records the finishing task's result into its
// GatherFuture slot and drives the next pending item, or delivers the
// aggregated result list once every item has completed.
func (vm *Interpreter) completeGatherItem(pw *pendingWork, retVal pyvalue.Value) callResult {
	if gen, ok := vm.Heap.Get(pw.acc.Ref).(*heap.Generator); ok {
		gen.State = heap.GenExhausted
	}
	futureRef := pw.gatherFuture.Ref
	gf, _ := vm.Heap.Get(futureRef).(*heap.GatherFuture)
	if gf != nil {
		item := &gf.Items[pw.idx]
		vm.Heap.DropValue(item.Gen)
		item.Gen = pyvalue.Value{}
		item.Done = true
		item.Result = retVal
	} else {
		vm.Heap.DropValue(retVal)
	}
	vm.Heap.DropValue(pw.acc)
	vm.Heap.DropValue(pw.gatherFuture)
	return vm.startGather(futureRef)
}

// pendingExternalFutureIDs lists the CallId of every item gather() is
// still waiting on a host-supplied ExternalFuture for (as opposed to a
// spawned coroutine task, which startGather drives itself).
func pendingExternalFutureIDs(gf *heap.GatherFuture) []pyvalue.CallId {
	var ids []pyvalue.CallId
	for _, it := range gf.Items {
		if !it.Done && !it.Cancelled && it.Gen.Kind != pyvalue.KindRef && it.CallID != 0 {
			ids = append(ids, it.CallID)
		}
	}
	return ids
}

// resumeGatherFutures inserts each host-supplied result into its matching
// item and resumes the gather loop (spec.md §4.5 FutureSnapshot::resume
// "inserts each result into the awaiting task and resumes the
// gather/await loop").
func (vm *Interpreter) resumeGatherFutures(results map[pyvalue.CallId]FutureResult) callResult {
	futureRef := vm.pendingGatherFuture
	vm.pendingGatherFuture = 0
	vm.hasPendingGatherFuture = false
	gf, ok := vm.Heap.Get(futureRef).(*heap.GatherFuture)
	if !ok {
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("expected a gather future")}
	}
	for i := range gf.Items {
		it := &gf.Items[i]
		if it.Done || it.Cancelled || it.Gen.Kind == pyvalue.KindRef || it.CallID == 0 {
			continue
		}
		r, ok := results[it.CallID]
		if !ok {
			continue
		}
		it.Done = true
		if r.Err != nil {
			it.Err = r.Err
		} else {
			it.Result = r.Value
		}
	}
	vm.Heap.DecRef(futureRef)
	return vm.startGather(futureRef)
}

// finishGather collects every item's result into the list asyncio.gather
// hands back to its awaiter, in call order.
func (vm *Interpreter) finishGather(futureRef pyvalue.HeapId) callResult {
	gf, ok := vm.Heap.Get(futureRef).(*heap.GatherFuture)
	if !ok {
		return callResult{outcome: callOutcomeValue, err: pyerr.InternalError("expected a gather future")}
	}
	results := make([]pyvalue.Value, len(gf.Items))
	for i, it := range gf.Items {
		results[i] = vm.Heap.CloneValue(it.Result)
	}
	id, err := vm.Heap.Allocate(heap.NewList(results))
	if err != nil {
		return callResult{outcome: callOutcomeValue, err: pyerr.FromResourceError(err)}
	}
	return callResult{outcome: callOutcomeValue, value: pyvalue.Ref(id)}
}
