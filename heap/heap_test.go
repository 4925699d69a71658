package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/tracker"
)

func newTestHeap() *Heap {
	return New(tracker.NoLimit(), intern.New())
}

// TestCloneValueIncRefsDropValueDecRefs is spec.md §8 invariant #1
// (refcount conservation): every CloneValue must be balanced by exactly
// one DropValue.
func TestCloneValueIncRefsDropValueDecRefs(t *testing.T) {
	h := newTestHeap()
	id, err := h.Allocate(NewStr("hello"))
	require.NoError(t, err)
	v := pyvalue.Ref(id)

	assert.Equal(t, int32(1), h.RefCount(id))
	clone := h.CloneValue(v)
	assert.Equal(t, int32(2), h.RefCount(id))

	h.DropValue(clone)
	assert.Equal(t, int32(1), h.RefCount(id))
	assert.Equal(t, 1, h.LiveCount())

	h.DropValue(v)
	assert.Equal(t, 0, h.LiveCount())
}

// TestDropValueFreesContainerChildren is spec.md §8 invariant #2: dropping
// a container's last reference transitively drops every child it owns.
func TestDropValueFreesContainerChildren(t *testing.T) {
	h := newTestHeap()
	childID, err := h.Allocate(NewStr("child"))
	require.NoError(t, err)

	listID, err := h.Allocate(NewList(nil))
	require.NoError(t, err)
	list := h.Get(listID).(*List)
	list.Append(h, listID, pyvalue.Ref(childID))

	require.Equal(t, 2, h.LiveCount())
	h.DropValue(pyvalue.Ref(listID))
	assert.Equal(t, 0, h.LiveCount())
}

// TestDropValueOnImmediateIsNoop confirms non-Ref Values never touch the
// arena (spec.md §3.2).
func TestDropValueOnImmediateIsNoop(t *testing.T) {
	h := newTestHeap()
	h.DropValue(pyvalue.Int(5))
	h.DropValue(pyvalue.None)
	assert.Equal(t, 0, h.LiveCount())
}

// TestAllocateReusesFreedSlotsWithBumpedGeneration exercises the
// generational-index scheme: a freed slot is reused, but its HeapId
// changes so a stale reference would be caught rather than silently
// aliasing new data.
func TestAllocateReusesFreedSlotsWithBumpedGeneration(t *testing.T) {
	h := newTestHeap()
	id1, err := h.Allocate(NewStr("first"))
	require.NoError(t, err)
	h.DropValue(pyvalue.Ref(id1))

	id2, err := h.Allocate(NewStr("second"))
	require.NoError(t, err)

	assert.Equal(t, h.slotOf(id1), h.slotOf(id2))
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "second", h.Get(id2).(*Str).S)
}

func TestRefCountUnderflowPanics(t *testing.T) {
	h := newTestHeap()
	id, err := h.Allocate(NewStr("x"))
	require.NoError(t, err)
	h.DecRef(id)
	assert.Panics(t, func() { h.DecRef(id) })
}
