package heap

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
)

// GeneratorState is the four-state machine spec.md §3.7 requires.
type GeneratorState byte

const (
	GenSuspended GeneratorState = iota
	GenRunning
	GenClosing
	GenExhausted
)

// Generator is the heap object that owns a suspended frame's persistent
// state between resumptions (spec.md §3.6/§3.7). The same shape serves
// both `def`-generators and `async def` coroutines; Coroutine is true for
// the latter so the VM can tell "must be driven by await/asyncio.run" from
// "driven by next()/send()" at the call site.
type Generator struct {
	State GeneratorState

	SavedFrame *frame.Frame
	SavedStack []pyvalue.Value // this frame's slice of the shared operand stack, saved across suspension

	Coroutine bool

	// StartedOnce guards the PEP 479 "unhandled StopIteration from a
	// generator body" rule: it only applies once the body has actually
	// begun running, not to a generator that was never advanced.
	StartedOnce bool
}

func NewGenerator(fr *frame.Frame, isCoroutine bool) *Generator {
	return &Generator{State: GenSuspended, SavedFrame: fr, Coroutine: isCoroutine}
}

func (g *Generator) TypeName() string {
	if g.Coroutine {
		return "coroutine"
	}
	return "generator"
}
func (g *Generator) Len() (int, bool) { return 0, false }
func (g *Generator) Bool() bool       { return true }
func (g *Generator) Repr(h *Heap) string {
	if g.Coroutine {
		return "<coroutine object>"
	}
	return "<generator object>"
}
func (g *Generator) Str(h *Heap) string { return g.Repr(h) }
func (g *Generator) ContainsRefs() bool { return true }
func (g *Generator) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range g.SavedFrame.Locals {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	for _, v := range g.SavedStack {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (g *Generator) EstimateSize() int64 {
	return int64(len(g.SavedFrame.Locals)+len(g.SavedStack))*16 + 64
}
func (g *Generator) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (g *Generator) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// GatherFuture is asyncio.gather's heap object (spec.md §4.3 "asyncio
// gather and tasks"): one GatherItem per awaitable, in call order.
type GatherFuture struct {
	Items []GatherItem
}

// GatherItem is one entry of a GatherFuture: either a spawned internal
// task backed by a coroutine Generator (TaskID != 0, Gen set) or an
// already-completed value contributed directly without spawning a task.
type GatherItem struct {
	TaskID    uint32
	CallID    pyvalue.CallId
	Gen       pyvalue.Value // Ref(Generator), set when TaskID != 0
	Done      bool
	Result    pyvalue.Value
	Err       error // non-nil once this item fails; triggers sibling cancellation
	Cancelled bool
}

func NewGatherFuture(items []GatherItem) *GatherFuture { return &GatherFuture{Items: items} }
func (gf *GatherFuture) TypeName() string              { return "_GatheringFuture" }
func (gf *GatherFuture) Len() (int, bool)              { return len(gf.Items), true }
func (gf *GatherFuture) Bool() bool                    { return true }
func (gf *GatherFuture) Repr(h *Heap) string           { return "<_GatheringFuture>" }
func (gf *GatherFuture) Str(h *Heap) string            { return gf.Repr(h) }
func (gf *GatherFuture) ContainsRefs() bool            { return true }
func (gf *GatherFuture) DecRefIds(scratch []HeapId) []HeapId {
	for _, it := range gf.Items {
		if it.Result.Kind == pyvalue.KindRef {
			scratch = append(scratch, it.Result.Ref)
		}
		if !it.Done && it.Gen.Kind == pyvalue.KindRef {
			scratch = append(scratch, it.Gen.Ref)
		}
	}
	return scratch
}
func (gf *GatherFuture) EstimateSize() int64 { return int64(len(gf.Items))*32 + 32 }
func (gf *GatherFuture) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (gf *GatherFuture) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// AllDone reports whether every item has completed (successfully,
// cancelled, or errored).
func (gf *GatherFuture) AllDone() bool {
	for _, it := range gf.Items {
		if !it.Done && !it.Cancelled {
			return false
		}
	}
	return true
}

// FirstError returns the index and error of the first failed item, in
// Items order, or (-1, nil) if none failed.
func (gf *GatherFuture) FirstError() (int, error) {
	for i, it := range gf.Items {
		if it.Err != nil {
			return i, it.Err
		}
	}
	return -1, nil
}
