package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/heysb/pyvalue"
)

// TestCollectCyclesReclaimsSelfReferentialList is spec.md §8 invariant #6:
// a list that references itself has a refcount kept alive only by the
// cycle, and must be reclaimed once nothing external points to it.
func TestCollectCyclesReclaimsSelfReferentialList(t *testing.T) {
	h := newTestHeap()
	id, err := h.Allocate(NewList(nil))
	require.NoError(t, err)

	list := h.Get(id).(*List)
	list.Append(h, id, h.CloneValue(pyvalue.Ref(id)))
	require.Equal(t, int32(2), h.RefCount(id))

	// Drop the external owner; only the self-reference keeps it alive.
	h.DropValue(pyvalue.Ref(id))
	require.Equal(t, int32(1), h.RefCount(id))
	require.Equal(t, 1, h.LiveCount())

	reclaimed := h.CollectCycles()
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, 0, h.LiveCount())
}

// TestCollectCyclesReclaimsMutualCycle covers a two-node cycle (A -> B ->
// A) with no external owner, the shape spec.md §4.1's tri-color sweep
// must detect across more than one candidate.
func TestCollectCyclesReclaimsMutualCycle(t *testing.T) {
	h := newTestHeap()
	aID, err := h.Allocate(NewList(nil))
	require.NoError(t, err)
	bID, err := h.Allocate(NewList(nil))
	require.NoError(t, err)

	a := h.Get(aID).(*List)
	a.Append(h, aID, h.CloneValue(pyvalue.Ref(bID)))
	b := h.Get(bID).(*List)
	b.Append(h, bID, h.CloneValue(pyvalue.Ref(aID)))

	// Drop the external owners: A's refcount is 1 (from B), B's is 1
	// (from A), nothing outside the pair keeps either alive.
	h.DropValue(pyvalue.Ref(aID))
	h.DropValue(pyvalue.Ref(bID))
	require.Equal(t, 2, h.LiveCount())

	reclaimed := h.CollectCycles()
	assert.Equal(t, 2, reclaimed)
	assert.Equal(t, 0, h.LiveCount())
}

// TestCollectCyclesDoesNotReclaimExternallyReferencedNode confirms a
// candidate whose refcount is still backed by something outside the
// candidate set survives collection.
func TestCollectCyclesDoesNotReclaimExternallyReferencedNode(t *testing.T) {
	h := newTestHeap()
	id, err := h.Allocate(NewList(nil))
	require.NoError(t, err)
	list := h.Get(id).(*List)
	list.Append(h, id, h.CloneValue(pyvalue.Ref(id)))

	// Keep the external owner this time.
	reclaimed := h.CollectCycles()
	assert.Equal(t, 0, reclaimed)
	assert.Equal(t, 1, h.LiveCount())

	// Dropping the external owner alone can't reach zero: the
	// self-reference still holds one count, so only another
	// CollectCycles pass reclaims it.
	h.DropValue(pyvalue.Ref(id))
	assert.Equal(t, 1, h.LiveCount())
	assert.Equal(t, 1, h.CollectCycles())
	assert.Equal(t, 0, h.LiveCount())
}

// TestCollectCyclesDecrefsExternalChildOfReclaimedCycle is the regression
// test for the mixed-cycle refcount leak: a cycle that also holds a Ref
// to a live object outside the candidate set must still decref that
// object when the cycle is reclaimed (spec.md §8 invariant #6 extended to
// mixed cycles, not just self-contained ones).
func TestCollectCyclesDecrefsExternalChildOfReclaimedCycle(t *testing.T) {
	h := newTestHeap()

	externalID, err := h.Allocate(NewStr("kept alive separately"))
	require.NoError(t, err)
	externalOwner := pyvalue.Ref(externalID) // the caller's own reference

	cycleID, err := h.Allocate(NewList(nil))
	require.NoError(t, err)
	cycle := h.Get(cycleID).(*List)
	cycle.Append(h, cycleID, h.CloneValue(pyvalue.Ref(cycleID))) // self-reference
	cycle.Append(h, cycleID, h.CloneValue(pyvalue.Ref(externalID)))

	require.Equal(t, int32(2), h.RefCount(externalID))

	// Drop the cycle's only external owner; the self-reference keeps it
	// a live candidate.
	h.DropValue(pyvalue.Ref(cycleID))
	require.Equal(t, int32(1), h.RefCount(cycleID))

	reclaimed := h.CollectCycles()
	assert.Equal(t, 1, reclaimed)

	// externalID is still alive (the caller's own reference), but its
	// refcount must have dropped back to 1 now that the reclaimed cycle
	// no longer references it.
	require.Equal(t, 1, h.LiveCount())
	assert.Equal(t, int32(1), h.RefCount(externalID))

	h.DropValue(externalOwner)
	assert.Equal(t, 0, h.LiveCount())
}
