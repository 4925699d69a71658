package stdlib

import (
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

func registerAsyncioBuiltins() {
	register("asyncio.gather", builtinGather)
}

// builtinGather packages its arguments into a GatherFuture without
// running anything yet — each coroutine argument becomes a pending
// GatherItem, everything else an already-completed one. Actually
// driving the pending items happens when the future is awaited
// (vm.execAwait), since only the VM can push frames (spec.md §4.3
// "asyncio.gather and tasks").
func builtinGather(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	items := make([]heap.GatherItem, len(args))
	for i, a := range args {
		switch {
		case a.Kind == pyvalue.KindRef:
			if gen, ok := h.Get(a.Ref).(*heap.Generator); ok && gen.Coroutine {
				items[i] = heap.GatherItem{TaskID: uint32(i + 1), Gen: a}
				continue
			}
			items[i] = heap.GatherItem{Done: true, Result: a}
		case a.Kind == pyvalue.KindExternalFuture:
			// Host-started async operation (spec.md §4.5's ExternalResult
			// Future variant): stays pending until ResumeFutures supplies
			// its result, distinct from a spawned coroutine task.
			items[i] = heap.GatherItem{CallID: a.Call}
		default:
			items[i] = heap.GatherItem{Done: true, Result: a}
		}
	}
	id, err := h.Allocate(heap.NewGatherFuture(items))
	if err != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(err)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}
