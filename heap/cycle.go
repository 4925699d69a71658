package heap

import "golang.org/x/exp/maps"

// CollectCycles runs a scoped tri-color mark over the candidate set
// recorded by MarkPotentialCycle (spec.md §4.1/§9): it simulates
// decrementing every internal reference among candidates to find the
// subset whose remaining refcount derives only from other candidates,
// then reclaims that subset as a group. It never touches the non-cyclic
// part of the heap, never runs finalizers, and never reorders
// already-observed side effects — collection only reclaims memory that
// is otherwise unreachable.
//
// Returns the number of heap ids reclaimed.
func (h *Heap) CollectCycles() int {
	if len(h.candidates) == 0 {
		return 0
	}

	candidates := maps.Keys(h.candidates)

	// gcRefcount starts as the true refcount and is decremented once for
	// every internal reference found among the candidate set.
	gcRefcount := make(map[uint32]int32, len(candidates))
	inSet := make(map[uint32]struct{}, len(candidates))
	for _, slot := range candidates {
		e := &h.entries[slot]
		if !e.live {
			continue
		}
		gcRefcount[slot] = e.refcount
		inSet[slot] = struct{}{}
	}

	scratch := make([]HeapId, 0, 16)
	for _, slot := range candidates {
		e := &h.entries[slot]
		if !e.live || e.data == nil {
			continue
		}
		scratch = scratch[:0]
		scratch = e.data.DecRefIds(scratch)
		for _, child := range scratch {
			cslot := h.slotOf(child)
			if _, ok := inSet[cslot]; ok {
				gcRefcount[cslot]--
			}
		}
	}

	// Anything whose simulated refcount is <= 0 has no owner outside the
	// candidate set and is garbage, transitively: tri-color mark
	// "external" (refcount > 0) objects as reachable, then propagate
	// reachability across the candidate graph.
	reachable := make(map[uint32]struct{})
	var visit func(slot uint32)
	visit = func(slot uint32) {
		if _, done := reachable[slot]; done {
			return
		}
		reachable[slot] = struct{}{}
		e := &h.entries[slot]
		if !e.live || e.data == nil {
			return
		}
		scratch = scratch[:0]
		scratch = e.data.DecRefIds(scratch)
		for _, child := range scratch {
			cslot := h.slotOf(child)
			if _, ok := inSet[cslot]; ok {
				visit(cslot)
			}
		}
	}
	for slot, rc := range gcRefcount {
		if rc > 0 {
			visit(slot)
		}
	}

	reclaimed := 0
	for _, slot := range candidates {
		if _, live := reachable[slot]; live {
			continue
		}
		e := &h.entries[slot]
		if !e.live {
			continue
		}
		if e.data != nil {
			scratch = scratch[:0]
			scratch = e.data.DecRefIds(scratch)
			for _, child := range scratch {
				cslot := h.slotOf(child)
				if _, ok := inSet[cslot]; !ok {
					h.DecRef(child)
				}
			}
		}
		e.live = false
		e.data = nil
		e.refcount = 0
		h.free = append(h.free, slot)
		delete(h.candidates, slot)
		reclaimed++
	}
	return reclaimed
}
