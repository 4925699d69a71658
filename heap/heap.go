// Package heap implements the arena of reference-counted, tagged entries
// described by spec.md §3.3/§4.1: allocate / inc-ref / dec-ref /
// with-entry-mut / mark-potential-cycle, plus the cycle collector (see
// cycle.go). It is the Go analogue of the teacher's map/slice-backed
// Array and Object payloads (values/value.go) generalized into a single
// generational arena so that every container — not just arrays and
// objects — shares one refcounting and cycle-detection discipline.
package heap

import (
	"fmt"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/tracker"
)

// HeapId is a generational index: the low 32 bits are the arena slot, the
// high 32 bits are a generation counter that is bumped every time a slot
// is freed and reused. A stale HeapId (generation mismatch) is a
// programmer error and is reported as Internal rather than silently
// aliasing unrelated data.
type HeapId = pyvalue.HeapId

func makeID(slot uint32, generation uint32) HeapId {
	return HeapId(uint64(generation)<<32 | uint64(slot))
}

func (h *Heap) slotOf(id HeapId) uint32       { return uint32(id) }
func (h *Heap) generationOf(id HeapId) uint32 { return uint32(id >> 32) }

// PyObject is the contract every HeapData payload implements — the Go
// analogue of spec.md §4.2's PyTrait, scoped to the part of the contract
// that only makes sense for heap-backed objects (immediates are handled
// directly by Heap's dispatch methods below without ever boxing them).
type PyObject interface {
	// TypeName is used for repr/error messages ("TypeError: 'list' object
	// is not callable", etc).
	TypeName() string

	// Len returns (length, true) or (0, false) if the type has no len().
	Len() (int, bool)

	// Bool is Python truthiness for this object; containers default to
	// "len() != 0" when they have no explicit override.
	Bool() bool

	// Repr and Str back repr()/str(); Str may fall back to Repr.
	Repr(h *Heap) string
	Str(h *Heap) string

	// GetAttr resolves attr to a deferred-call result, or reports found
	// == false so the caller continues MRO / __getattr__ lookup.
	GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool)

	// CallAttr dispatches a named method call against this object.
	CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool)

	// DecRefIds pushes every HeapId this payload owns onto scratch,
	// without recursing — the iterative drop-traversal primitive
	// spec.md §4.1 requires.
	DecRefIds(scratch []HeapId) []HeapId

	// ContainsRefs reports whether DecRefIds can ever return a non-empty
	// slice; containers of only immediates return false so drop
	// traversal can skip them entirely (spec.md §3.3).
	ContainsRefs() bool

	// EstimateSize is charged against the resource tracker at allocation
	// time (spec.md §4.1).
	EstimateSize() int64
}

type entry struct {
	data       PyObject
	refcount   int32
	generation uint32
	cyclic     bool // mark_potential_cycle has been called on this entry
	live       bool
}

// PrintSink is the narrow write-only contract print() needs (spec.md
// §4.5/§6.4's print-writer, restated here so this package never has to
// import package vm just to call it).
type PrintSink interface {
	StdoutWrite(s string)
}

// Heap is the arena. It is never shared across goroutines — spec.md §5
// makes the VM single-threaded and the heap is owned by exactly one
// active invocation at a time.
type Heap struct {
	entries []entry
	free    []uint32 // freed slots available for reuse

	tracker tracker.Tracker
	interns *intern.Table
	print   PrintSink

	candidates map[uint32]struct{} // cycle-collector candidate set
}

// New constructs an empty Heap charged against tr and resolving
// InternString content through interns. A nil tracker is replaced with
// tracker.NoLimit(); interns must not be nil — every Heap is created
// alongside the Runner's intern table (spec.md §2 layer 1).
func New(tr tracker.Tracker, interns *intern.Table) *Heap {
	if tr == nil {
		tr = tracker.NoLimit()
	}
	return &Heap{
		tracker:    tr,
		interns:    interns,
		candidates: make(map[uint32]struct{}),
	}
}

// Interns exposes the shared intern table so callers that hold only a
// *Heap (stdlib builtins, the VM) can still intern or resolve strings.
func (h *Heap) Interns() *intern.Table { return h.interns }

// SetInterns rebinds the table content is hashed/resolved against.
// Package sandbox calls this once after a Snapshot reload, since
// GobDecode can't thread the freshly decoded *intern.Table into a Heap
// it is simultaneously decoding (spec.md §4.5 round-trip).
func (h *Heap) SetInterns(t *intern.Table) { h.interns = t }

// SetTracker rebinds the resource tracker a reloaded Heap charges
// allocations against, mirroring SetInterns.
func (h *Heap) SetTracker(t tracker.Tracker) { h.tracker = t }

// SetPrintSink installs the sink print() writes through; package sandbox
// calls this once per Run/Resume with whatever PrintWriter the caller
// supplied (spec.md §6.4).
func (h *Heap) SetPrintSink(sink PrintSink) { h.print = sink }

// Print writes s through the installed sink, or drops it silently if
// none is installed yet (e.g. a builtin invoked outside a Run call).
func (h *Heap) Print(s string) {
	if h.print != nil {
		h.print.StdoutWrite(s)
	}
}

// Allocate places data in a free arena slot (or a fresh one), sets its
// refcount to 1, and charges the tracker for data.EstimateSize(). On
// tracker refusal it returns a ResourceError, which callers must surface
// as pyerr.UncatchableExc(MemoryError) per spec.md §4.1.
func (h *Heap) Allocate(data PyObject) (HeapId, error) {
	if err := h.tracker.OnAllocate(data.EstimateSize()); err != nil {
		return 0, err
	}

	var slot uint32
	var gen uint32
	if n := len(h.free); n > 0 {
		slot = h.free[n-1]
		h.free = h.free[:n-1]
		gen = h.entries[slot].generation + 1
	} else {
		slot = uint32(len(h.entries))
		h.entries = append(h.entries, entry{})
		gen = 0
	}
	h.entries[slot] = entry{data: data, refcount: 1, generation: gen, live: true}

	if data.ContainsRefs() {
		h.MarkPotentialCycle(makeID(slot, gen))
	}
	return makeID(slot, gen), nil
}

func (h *Heap) lookup(id HeapId) *entry {
	slot := h.slotOf(id)
	if int(slot) >= len(h.entries) {
		panic(fmt.Sprintf("heap: slot %d out of range", slot))
	}
	e := &h.entries[slot]
	if !e.live || e.generation != h.generationOf(id) {
		panic(fmt.Sprintf("heap: stale or dead HeapId %v", id))
	}
	return e
}

// Get returns the payload stored at id without affecting its refcount.
func (h *Heap) Get(id HeapId) PyObject { return h.lookup(id).data }

// IncRef bumps id's refcount by one — the Clone half of spec.md §3.2's
// "every Ref owns exactly one reference" invariant.
func (h *Heap) IncRef(id HeapId) {
	e := h.lookup(id)
	e.refcount++
}

// CloneValue returns a Value that shares ownership with v: for a Ref this
// bumps the refcount, for an immediate it is a plain copy (Values are
// Copy-equivalent per spec.md §3.2).
func (h *Heap) CloneValue(v pyvalue.Value) pyvalue.Value {
	if v.Kind == pyvalue.KindRef {
		h.IncRef(v.Ref)
	}
	return v
}

// DecRef decrements id's refcount and, at zero, performs the iterative
// drop traversal described by spec.md §4.1: push the freed object's
// DecRefIds onto a scratch stack and keep decrementing until the stack is
// empty, so a long chain (e.g. a huge linked list) never recurses.
func (h *Heap) DecRef(id HeapId) {
	scratch := []HeapId{id}
	for len(scratch) > 0 {
		cur := scratch[len(scratch)-1]
		scratch = scratch[:len(scratch)-1]

		e := h.lookup(cur)
		e.refcount--
		if e.refcount > 0 {
			continue
		}
		if e.refcount < 0 {
			panic(fmt.Sprintf("heap: refcount underflow on %v", cur))
		}
		if e.data.ContainsRefs() {
			scratch = e.data.DecRefIds(scratch)
		}
		delete(h.candidates, h.slotOf(cur))
		e.live = false
		e.data = nil
		h.free = append(h.free, h.slotOf(cur))
	}
}

// DropValue is the single exit-path primitive every frame/opcode/builtin
// must route an owned Value through on every return path — normal,
// error, or early return (spec.md §4.1).
func (h *Heap) DropValue(v pyvalue.Value) {
	if v.Kind == pyvalue.KindRef {
		h.DecRef(v.Ref)
	}
}

// DropValues drops every value in vs; used by cleanup_on_error (package
// pysignature) and by frame teardown.
func (h *Heap) DropValues(vs []pyvalue.Value) {
	for _, v := range vs {
		h.DropValue(v)
	}
}

// MarkPotentialCycle records id as a cycle-collector candidate. Called by
// Allocate automatically for any ContainsRefs() payload, and by container
// mutators (WithEntryMut bodies) whenever a Ref is newly accepted into an
// existing container.
func (h *Heap) MarkPotentialCycle(id HeapId) {
	h.candidates[h.slotOf(id)] = struct{}{}
}

// WithEntryMut is the borrow-splitting primitive from spec.md §4.1: it
// temporarily removes id's payload from the arena (replacing it with a
// nil placeholder so the slot can't be double-borrowed), invokes fn with
// the heap and the extracted payload, and restores whatever fn returns.
// This lets a container's mutator (Dict.Set, List.Append, ...) drop a
// replaced child value — which needs &Heap — without a second mutable
// borrow of the same heap.
func (h *Heap) WithEntryMut(id HeapId, fn func(h *Heap, data PyObject) PyObject) {
	e := h.lookup(id)
	data := e.data
	e.data = nil
	newData := fn(h, data)
	// e may have moved if fn allocated/freed slots; re-resolve.
	e = h.lookup(id)
	e.data = newData
	if newData != nil && newData.ContainsRefs() {
		h.MarkPotentialCycle(id)
	}
}

// RefCount reports id's current refcount, chiefly for tests asserting
// spec.md §8 property 1 (refcount conservation).
func (h *Heap) RefCount(id HeapId) int32 { return h.lookup(id).refcount }

// LiveCount reports how many arena slots are currently live; used by
// leak-checker tests and by the cycle-collection invariant test
// (spec.md §8 property 6).
func (h *Heap) LiveCount() int {
	n := 0
	for _, e := range h.entries {
		if e.live {
			n++
		}
	}
	return n
}

// TypeName, Len, Bool, Repr, Str dispatch PyTrait-equivalent operations
// across both immediates and Ref values, the way spec.md §4.2 describes
// a uniform contract spanning the whole Value union.
func (h *Heap) TypeName(v pyvalue.Value) string {
	switch v.Kind {
	case pyvalue.KindNone:
		return "NoneType"
	case pyvalue.KindBool:
		return "bool"
	case pyvalue.KindInt:
		return "int"
	case pyvalue.KindFloat:
		return "float"
	case pyvalue.KindInternString:
		return "str"
	case pyvalue.KindInternBytes:
		return "bytes"
	case pyvalue.KindInternLongInt:
		return "int"
	case pyvalue.KindRef:
		return h.Get(v.Ref).TypeName()
	case pyvalue.KindUndefined:
		return "undefined"
	default:
		return "object"
	}
}

func (h *Heap) Len(v pyvalue.Value) (int, bool) {
	if v.Kind == pyvalue.KindRef {
		return h.Get(v.Ref).Len()
	}
	return 0, false
}

func (h *Heap) Bool(v pyvalue.Value) bool {
	if b, ok := v.Truthy(); ok {
		return b
	}
	if v.Kind == pyvalue.KindRef {
		return h.Get(v.Ref).Bool()
	}
	return true
}

// Repr and Str dispatch PyTrait's repr/str across immediates and Ref
// values, the uniform contract spec.md §4.2 requires of every Value.
func (h *Heap) Repr(v pyvalue.Value) string {
	switch v.Kind {
	case pyvalue.KindUndefined:
		return "<undefined>"
	case pyvalue.KindNone:
		return "None"
	case pyvalue.KindNotImplemented:
		return "NotImplemented"
	case pyvalue.KindEllipsis:
		return "Ellipsis"
	case pyvalue.KindBool:
		if v.B {
			return "True"
		}
		return "False"
	case pyvalue.KindInt:
		return fmt.Sprintf("%d", v.I)
	case pyvalue.KindFloat:
		return fmt.Sprintf("%g", v.F)
	case pyvalue.KindInternString:
		return fmt.Sprintf("%q", h.interns.String(v.SID))
	case pyvalue.KindInternBytes:
		return fmt.Sprintf("b%q", string(h.interns.Bytes(v.BID)))
	case pyvalue.KindInternLongInt:
		return h.interns.LongInt(v.LID).String()
	case pyvalue.KindRef:
		return h.Get(v.Ref).Repr(h)
	default:
		return "<object>"
	}
}

func (h *Heap) Str(v pyvalue.Value) string {
	switch v.Kind {
	case pyvalue.KindInternString:
		return h.interns.String(v.SID)
	case pyvalue.KindRef:
		return h.Get(v.Ref).Str(h)
	default:
		return h.Repr(v)
	}
}
